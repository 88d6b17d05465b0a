package catalog

import (
	"bytes"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seentics/tracker/pkg/models"
)

// ParsePreview decodes a preview workflow written as JSON or YAML and runs it
// through the graph validation.
func ParsePreview(data []byte, validator *Validator) (*models.Workflow, error) {
	raw := bytes.TrimSpace(data)

	if len(raw) == 0 || raw[0] != '{' {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, invalid("%v", err)
		}

		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, invalid("%v", err)
		}

		raw = encoded
	}

	return validator.ValidateJSON(raw)
}

// ReadPreview reads and parses a preview workflow file.
func ReadPreview(path string, validator *Validator) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParsePreview(data, validator)
}
