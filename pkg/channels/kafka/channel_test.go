package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannels_RequireBrokers(t *testing.T) {
	logger := watermill.NopLogger{}

	_, err := CreatePublisher(logger, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = CreateSubscriber(logger, []string{""}, "seentics")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestCreateSubscriber_ConnectsLazily(t *testing.T) {
	sub, err := CreateSubscriber(watermill.NopLogger{}, []string{"localhost:9092"}, "seentics-tracker")
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
}
