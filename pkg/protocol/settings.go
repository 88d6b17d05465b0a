package protocol

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes free-form node settings into a typed struct tagged
// with `mapstructure`. Input is weakly typed: "10" and 10 both decode into an int.
func DecodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(settings); err != nil {
		return fmt.Errorf("invalid node settings: %w", err)
	}

	return nil
}
