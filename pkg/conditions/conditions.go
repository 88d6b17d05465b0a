// Package conditions implements the built-in condition kinds. Every condition
// is a pure function of the page snapshot taken when the walk reaches it.
package conditions

import (
	"context"
	"strings"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"github.com/seentics/tracker/pkg/registry"
)

// RegisterDefaults registers every built-in condition.
func RegisterDefaults(reg *registry.Registry) {
	reg.RegisterCondition(NewURLPathFactory())
	reg.RegisterCondition(NewTrafficSourceFactory())
	reg.RegisterCondition(NewVisitorTypeFactory())
	reg.RegisterCondition(NewDeviceTypeFactory())
}

// URLPathFactory builds "URL Path" conditions: the current path contains a substring.
type URLPathFactory struct{}

func NewURLPathFactory() protocol.ConditionFactory {
	return &URLPathFactory{}
}

func (f *URLPathFactory) ID() string {
	return models.ConditionURLPath
}

func (f *URLPathFactory) Description() string {
	return "Passes when the current path contains the configured text."
}

func (f *URLPathFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
		},
	}
}

func (f *URLPathFactory) Create(settings map[string]any) (protocol.Condition, error) {
	var s struct {
		URL string `mapstructure:"url"`
	}

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	return protocol.ConditionFunc(func(_ context.Context, execCtx models.ExecutionContext) (bool, error) {
		return strings.Contains(execCtx.Page.Path, s.URL), nil
	}), nil
}

// TrafficSourceFactory builds "Traffic Source" conditions: the referrer contains a substring.
type TrafficSourceFactory struct{}

func NewTrafficSourceFactory() protocol.ConditionFactory {
	return &TrafficSourceFactory{}
}

func (f *TrafficSourceFactory) ID() string {
	return models.ConditionTrafficSource
}

func (f *TrafficSourceFactory) Description() string {
	return "Passes when the document referrer contains the configured text."
}

func (f *TrafficSourceFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"referrerUrl": map[string]any{"type": "string"},
		},
	}
}

func (f *TrafficSourceFactory) Create(settings map[string]any) (protocol.Condition, error) {
	var s struct {
		ReferrerURL string `mapstructure:"referrerUrl"`
	}

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	return protocol.ConditionFunc(func(_ context.Context, execCtx models.ExecutionContext) (bool, error) {
		return strings.Contains(execCtx.Page.Referrer, s.ReferrerURL), nil
	}), nil
}

// VisitorTypeFactory builds "New vs Returning" conditions.
type VisitorTypeFactory struct{}

func NewVisitorTypeFactory() protocol.ConditionFactory {
	return &VisitorTypeFactory{}
}

func (f *VisitorTypeFactory) ID() string {
	return models.ConditionVisitorType
}

func (f *VisitorTypeFactory) Description() string {
	return "Passes for first-time or for returning visitors."
}

func (f *VisitorTypeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"visitorType": map[string]any{"type": "string", "enum": []any{"new", "returning", ""}},
		},
	}
}

func (f *VisitorTypeFactory) Create(settings map[string]any) (protocol.Condition, error) {
	var s struct {
		VisitorType string `mapstructure:"visitorType"`
	}

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	return protocol.ConditionFunc(func(_ context.Context, execCtx models.ExecutionContext) (bool, error) {
		switch strings.ToLower(s.VisitorType) {
		case "new":
			return !execCtx.Page.Identity.IsReturning, nil
		case "returning":
			return execCtx.Page.Identity.IsReturning, nil
		default:
			return true, nil
		}
	}), nil
}
