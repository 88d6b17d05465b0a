package frequency

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/mocks"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func actionNode(policy models.FrequencyPolicy) *models.Node {
	node := &models.Node{ID: "a1", Type: models.NodeTypeAction, Title: models.ActionShowModal}
	if policy != "" {
		node.Settings = map[string]any{models.FrequencySettingKey: string(policy)}
	}

	return node
}

func TestController_Policies(t *testing.T) {
	testCases := []struct {
		name string
		// eligibility after 1st run in the same session, and after a new session
		policy            models.FrequencyPolicy
		sameSession       bool
		afterSessionReset bool
	}{
		{"every trigger", models.FrequencyEveryTrigger, true, true},
		{"once per session", models.FrequencyOncePerSession, false, true},
		{"once ever", models.FrequencyOnceEver, false, false},
		{"unset is recorded as every trigger", "", true, true},
		{"unknown policy", "hourly", true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			session := storage.NewSession(0)
			durable := storage.NewMemory()
			controller := NewController(session, durable, clockwork.NewFakeClock(), log.Discard())
			node := actionNode(tc.policy)

			require.True(t, controller.CanExecute(ctx, "wf", node))
			controller.Record(ctx, "wf", node)
			assert.Equal(t, tc.sameSession, controller.CanExecute(ctx, "wf", node))

			session.Clear()
			assert.Equal(t, tc.afterSessionReset, controller.CanExecute(ctx, "wf", node))
		})
	}
}

func TestController_UnsetPolicyReadsSessionMarker(t *testing.T) {
	ctx := context.Background()
	session := storage.NewMemory()
	controller := NewController(session, storage.NewMemory(), nil, log.Discard())

	require.NoError(t, session.Set(ctx, SessionKey("wf", "a1"), "true"))

	assert.False(t, controller.CanExecute(ctx, "wf", actionNode("")))
	assert.True(t, controller.CanExecute(ctx, "wf", actionNode(models.FrequencyEveryTrigger)))
}

func TestController_RecordWritesTimestamp(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	controller := NewController(storage.NewMemory(), durable, clock, log.Discard())

	controller.Record(ctx, "wf-9", actionNode(models.FrequencyOnceEver))

	marker, err := durable.Get(ctx, "seentics_wf_ever_wf-9_a1")
	require.NoError(t, err)
	assert.Equal(t, "true", marker)

	stamp, err := durable.Get(ctx, "seentics_wf_ever_wf-9_a1_time")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", stamp)
}

func TestController_StorageFailureIsEligible(t *testing.T) {
	ctx := context.Background()
	controller := NewController(storage.Failing{}, storage.Failing{}, nil, log.Discard())
	node := actionNode(models.FrequencyOnceEver)

	controller.Record(ctx, "wf", node)
	assert.True(t, controller.CanExecute(ctx, "wf", node))
}

func TestController_TouchesOnlyThePolicyStore(t *testing.T) {
	ctx := context.Background()
	node := actionNode(models.FrequencyOncePerSession)
	key := SessionKey("wf", node.ID)

	session := &mocks.MockStore{}
	session.On("Get", ctx, key).Return("", storage.ErrNotFound).Once()
	session.On("Set", ctx, key, mock.Anything).Return(nil).Once()
	session.On("Set", ctx, key+"_time", mock.Anything).Return(nil).Once()

	durable := &mocks.MockStore{}

	controller := NewController(session, durable, clockwork.NewFakeClock(), log.Discard())

	assert.True(t, controller.CanExecute(ctx, "wf", node))
	controller.Record(ctx, "wf", node)

	assert.True(t, controller.CanExecute(ctx, "wf", actionNode(models.FrequencyEveryTrigger)))

	session.AssertExpectations(t)
	durable.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	durable.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}
