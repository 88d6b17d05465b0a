package actions

import (
	"context"
	"maps"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
)

type redirectSettings struct {
	URL string `mapstructure:"redirectUrl"`
}

// RedirectFactory builds "Redirect URL" actions.
type RedirectFactory struct {
	deps *Dependencies
}

func NewRedirectFactory(deps *Dependencies) protocol.ActionFactory {
	return &RedirectFactory{deps: deps}
}

func (f *RedirectFactory) ID() string {
	return models.ActionRedirectURL
}

func (f *RedirectFactory) Description() string {
	return "Navigates the visitor to another URL."
}

func (f *RedirectFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"redirectUrl": map[string]any{"type": "string"},
		},
	}
}

func (f *RedirectFactory) Create(settings map[string]any) (protocol.Action, error) {
	var s redirectSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	return protocol.ActionFunc(func(_ context.Context, _ models.ExecutionContext) error {
		if s.URL == "" {
			return nil
		}

		return f.deps.Page.Navigate(s.URL)
	}), nil
}

type trackEventSettings struct {
	EventName  string         `mapstructure:"eventName"`
	Properties map[string]any `mapstructure:"eventProperties"`
}

// TrackEventFactory builds "Track Event" actions.
type TrackEventFactory struct {
	deps *Dependencies
}

func NewTrackEventFactory(deps *Dependencies) protocol.ActionFactory {
	return &TrackEventFactory{deps: deps}
}

func (f *TrackEventFactory) ID() string {
	return models.ActionTrackEvent
}

func (f *TrackEventFactory) Description() string {
	return "Records a custom analytics event attributed to the workflow node."
}

func (f *TrackEventFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"eventName":       map[string]any{"type": "string"},
			"eventProperties": map[string]any{"type": "object"},
		},
	}
}

func (f *TrackEventFactory) Create(settings map[string]any) (protocol.Action, error) {
	var s trackEventSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	return protocol.ActionFunc(func(ctx context.Context, execCtx models.ExecutionContext) error {
		if s.EventName == "" || f.deps.Track == nil {
			return nil
		}

		props := make(map[string]any, len(s.Properties)+2)
		maps.Copy(props, s.Properties)
		props["workflow_id"] = execCtx.WorkflowID
		props["node_id"] = execCtx.NodeID

		f.deps.Track(ctx, s.EventName, props)

		return nil
	}), nil
}
