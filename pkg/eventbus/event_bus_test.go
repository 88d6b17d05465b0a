package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/seentics/tracker/pkg/channels/gochannel"
	"github.com/seentics/tracker/pkg/eventbus"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_PublishAndConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	defer func() { _ = pub.Close() }()

	received := make(chan models.Batch[models.TelemetryEvent], 1)

	err = eventbus.Consume(ctx, sub, eventbus.TopicWorkflowTelemetry, log.Discard(),
		func(_ context.Context, batch models.Batch[models.TelemetryEvent]) error {
			received <- batch

			return nil
		})
	require.NoError(t, err)

	sink := eventbus.NewSink[models.TelemetryEvent](pub, eventbus.TopicWorkflowTelemetry)

	err = sink.Send(ctx, models.Batch[models.TelemetryEvent]{
		SiteID: "site-1",
		Events: []models.TelemetryEvent{
			{WorkflowID: "wf-1", Event: models.EventWorkflowTrigger},
			{WorkflowID: "wf-1", Event: models.EventWorkflowCompleted, TotalNodes: 3},
		},
	})
	require.NoError(t, err, "publishing blocks until the consumer acked")

	select {
	case batch := <-received:
		assert.Equal(t, "site-1", batch.SiteID)
		require.Len(t, batch.Events, 2)
		assert.Equal(t, 3, batch.Events[1].TotalNodes)
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not delivered")
	}
}

func TestSink_PublishAfterCloseFails(t *testing.T) {
	pub, _, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	sink := eventbus.NewSink[models.PageEvent](pub, eventbus.TopicPageTelemetry)

	assert.Error(t, sink.Send(context.Background(), models.Batch[models.PageEvent]{SiteID: "s"}))
}
