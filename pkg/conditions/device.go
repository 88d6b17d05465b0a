package conditions

import (
	"context"
	"strings"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
)

// Touch requirements of a Device Type condition.
const (
	TouchAny      = "any"
	TouchRequired = "required"
	TouchNone     = "none"
)

type deviceTypeSettings struct {
	DeviceType     string `mapstructure:"deviceType"`
	MinScreenWidth int    `mapstructure:"minScreenWidth"`
	MaxScreenWidth int    `mapstructure:"maxScreenWidth"`
	TouchSupport   string `mapstructure:"touchSupport"`
}

// DeviceTypeFactory builds "Device Type" conditions. Every configured sub-check
// must pass; unset ones are ignored.
type DeviceTypeFactory struct{}

func NewDeviceTypeFactory() protocol.ConditionFactory {
	return &DeviceTypeFactory{}
}

func (f *DeviceTypeFactory) ID() string {
	return models.ConditionDeviceType
}

func (f *DeviceTypeFactory) Description() string {
	return "Passes when device class, screen width and touch capability all match."
}

func (f *DeviceTypeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"deviceType":     map[string]any{"type": "string"},
			"minScreenWidth": map[string]any{"type": []any{"integer", "string"}},
			"maxScreenWidth": map[string]any{"type": []any{"integer", "string"}},
			"touchSupport":   map[string]any{"type": []any{"string", "boolean"}},
		},
	}
}

func (f *DeviceTypeFactory) Create(settings map[string]any) (protocol.Condition, error) {
	var s deviceTypeSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	touch := normalizeTouch(s.TouchSupport)

	return protocol.ConditionFunc(func(_ context.Context, execCtx models.ExecutionContext) (bool, error) {
		page := execCtx.Page

		if s.DeviceType != "" && !strings.EqualFold(s.DeviceType, models.DeviceAny) &&
			!strings.EqualFold(s.DeviceType, page.Device.Device) {
			return false, nil
		}

		if s.MinScreenWidth > 0 && page.ScreenWidth < s.MinScreenWidth {
			return false, nil
		}

		if s.MaxScreenWidth > 0 && page.ScreenWidth > s.MaxScreenWidth {
			return false, nil
		}

		switch touch {
		case TouchRequired:
			return page.TouchSupport, nil
		case TouchNone:
			return !page.TouchSupport, nil
		default:
			return true, nil
		}
	}), nil
}

func normalizeTouch(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case TouchRequired, "true", "1", "yes":
		return TouchRequired
	case TouchNone, "false", "0", "no":
		return TouchNone
	default:
		return TouchAny
	}
}
