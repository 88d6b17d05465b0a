package catalog

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/registry"
	"github.com/xeipuuv/gojsonschema"
)

// graphSchema accepts nodes in the flat form and in the editor form where the
// payload sits under "data".
var graphSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []any{"id", "nodes"},
	"properties": map[string]any{
		"id":     map[string]any{"type": "string", "minLength": 1},
		"status": map[string]any{"type": "string"},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id"},
				"properties": map[string]any{
					"id":       map[string]any{"type": "string", "minLength": 1},
					"settings": map[string]any{"type": []any{"object", "null"}},
					"data":     map[string]any{"type": "object"},
				},
			},
		},
		"edges": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type":     "object",
				"required": []any{"source", "target"},
				"properties": map[string]any{
					"source": map[string]any{"type": "string"},
					"target": map[string]any{"type": "string"},
				},
			},
		},
	},
})

// Validator checks that a graph is well formed before it reaches the engine.
type Validator struct {
	schema   *gojsonschema.Schema
	validate *validator.Validate
	registry *registry.Registry
}

// NewValidator returns a validator. With a registry, node settings are also
// checked against the schema of their kind.
func NewValidator(reg *registry.Registry) *Validator {
	schema, err := gojsonschema.NewSchema(graphSchema)
	if err != nil {
		panic(err)
	}

	return &Validator{
		schema:   schema,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		registry: reg,
	}
}

// ValidateJSON checks raw JSON against the graph schema and decodes it.
func (v *Validator) ValidateJSON(raw []byte) (*models.Workflow, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, invalid("%v", err)
	}

	if !result.Valid() {
		errs := make([]error, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, errors.New(desc.String()))
		}

		return nil, invalid("%v", errors.Join(errs...))
	}

	var workflow models.Workflow
	if err := json.Unmarshal(raw, &workflow); err != nil {
		return nil, invalid("%v", err)
	}

	if err := v.Validate(&workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// Validate checks a decoded graph: required fields, unique node ids and edges
// between existing nodes.
func (v *Validator) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return invalid("no workflow")
	}

	if err := v.validate.Struct(workflow); err != nil {
		return invalid("workflow %q: %v", workflow.ID, err)
	}

	ids := make(map[string]struct{}, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if _, dup := ids[node.ID]; dup {
			return invalid("workflow %q: duplicate node id %q", workflow.ID, node.ID)
		}

		ids[node.ID] = struct{}{}
	}

	for _, edge := range workflow.Edges {
		if _, ok := ids[edge.Source]; !ok {
			return invalid("workflow %q: edge from unknown node %q", workflow.ID, edge.Source)
		}

		if _, ok := ids[edge.Target]; !ok {
			return invalid("workflow %q: edge to unknown node %q", workflow.ID, edge.Target)
		}
	}

	return nil
}

// SettingsWarnings returns the settings of known node kinds that do not match
// their schema. These never drop the graph: the node fails when it runs.
func (v *Validator) SettingsWarnings(workflow *models.Workflow) []error {
	if v.registry == nil {
		return nil
	}

	var warnings []error

	for _, node := range workflow.Nodes {
		if err := v.registry.ValidateSettings(node); err != nil {
			warnings = append(warnings, err)
		}
	}

	return warnings
}
