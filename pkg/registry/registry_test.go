package registry_test

import (
	"context"
	"testing"

	"github.com/seentics/tracker/pkg/conditions"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"github.com/seentics/tracker/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAction struct{}

func (stubAction) ID() string          { return "Stub" }
func (stubAction) Description() string { return "does nothing" }

func (stubAction) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"target"},
		"properties": map[string]any{
			"target": map[string]any{"type": "string"},
		},
	}
}

func (stubAction) Create(map[string]any) (protocol.Action, error) {
	return protocol.ActionFunc(func(context.Context, models.ExecutionContext) error { return nil }), nil
}

func TestRegistry_CreateByTitle(t *testing.T) {
	reg := registry.NewRegistry(log.Discard())
	conditions.RegisterDefaults(reg)
	reg.RegisterAction(stubAction{})

	assert.Equal(t, []string{"Device Type", "New vs Returning", "Traffic Source", "URL Path"}, reg.Conditions())
	assert.Equal(t, []string{"Stub"}, reg.Actions())

	_, err := reg.CreateCondition(&models.Node{Title: models.ConditionURLPath})
	require.NoError(t, err)

	_, err = reg.CreateCondition(&models.Node{Title: "Weather"})
	require.ErrorIs(t, err, registry.ErrNotRegistered)

	_, err = reg.CreateAction(&models.Node{Title: "Teleport"})
	require.ErrorIs(t, err, registry.ErrNotRegistered)

	action, err := reg.CreateAction(&models.Node{Title: "Stub"})
	require.NoError(t, err)
	assert.NoError(t, action.Execute(context.Background(), models.ExecutionContext{}))
}

func TestRegistry_ValidateSettings(t *testing.T) {
	reg := registry.NewRegistry(log.Discard())
	reg.RegisterAction(stubAction{})
	conditions.RegisterDefaults(reg)

	testCases := []struct {
		name    string
		node    *models.Node
		wantErr bool
	}{
		{
			name: "valid action settings",
			node: &models.Node{ID: "a", Type: models.NodeTypeAction, Title: "Stub", Settings: map[string]any{"target": "x"}},
		},
		{
			name:    "missing required setting",
			node:    &models.Node{ID: "a", Type: models.NodeTypeAction, Title: "Stub"},
			wantErr: true,
		},
		{
			name:    "wrong setting type",
			node:    &models.Node{ID: "c", Type: models.NodeTypeCondition, Title: models.ConditionURLPath, Settings: map[string]any{"url": 42}},
			wantErr: true,
		},
		{
			name: "unknown titles are not checked",
			node: &models.Node{ID: "a", Type: models.NodeTypeAction, Title: "Teleport", Settings: map[string]any{"x": 1}},
		},
		{
			name: "triggers are not checked",
			node: &models.Node{ID: "t", Type: models.NodeTypeTrigger, Title: models.TriggerPageView},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := reg.ValidateSettings(tc.node)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
