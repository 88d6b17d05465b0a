// Package catalog loads the active workflow graphs of a site.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seentics/tracker/pkg/models"
)

var (
	ErrMissingSiteID   = errors.New("site id is required")
	ErrInvalidWorkflow = errors.New("invalid workflow")
)

// Source fetches the active workflows endpoint.
type Source interface {
	ActiveWorkflowsURL(siteID string) string
	GetJSON(ctx context.Context, rawURL string, out any) error
}

// Loader resolves the catalog for a site, either the injected preview graph
// or the live list from the backend.
type Loader struct {
	source    Source
	validator *Validator
	preview   *models.Workflow
	logger    *slog.Logger
}

type Option func(*Loader)

// WithPreview injects the graph used when the site id is "preview".
func WithPreview(workflow *models.Workflow) Option {
	return func(l *Loader) { l.preview = workflow }
}

// WithValidator replaces the default graph validator.
func WithValidator(validator *Validator) Option {
	return func(l *Loader) { l.validator = validator }
}

func NewLoader(source Source, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		source:    source,
		validator: NewValidator(nil),
		logger:    logger.With("module", "catalog"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load returns the workflows to run on this page. Network and decoding
// failures yield an empty catalog; only configuration errors are returned.
func (l *Loader) Load(ctx context.Context, siteID string) ([]*models.Workflow, error) {
	if siteID == "" {
		return nil, ErrMissingSiteID
	}

	logger := l.logger.With("site_id", siteID)

	if siteID == models.PreviewSiteID && l.preview != nil {
		if err := l.validator.Validate(l.preview); err != nil {
			return nil, err
		}

		logger.DebugContext(ctx, "using preview workflow", "workflow_id", l.preview.ID)

		return []*models.Workflow{l.preview}, nil
	}

	if l.source == nil {
		logger.WarnContext(ctx, "no workflow source configured")

		return nil, nil
	}

	var response struct {
		Workflows []json.RawMessage `json:"workflows"`
	}

	if err := l.source.GetJSON(ctx, l.source.ActiveWorkflowsURL(siteID), &response); err != nil {
		logger.WarnContext(ctx, "failed to fetch workflows", "error", err)

		return nil, nil
	}

	workflows := make([]*models.Workflow, 0, len(response.Workflows))

	for i, raw := range response.Workflows {
		workflow, err := l.validator.ValidateJSON(raw)
		if err != nil {
			logger.WarnContext(ctx, "dropping invalid workflow", "index", i, "error", err)

			continue
		}

		if !workflow.IsActive() {
			continue
		}

		for _, warning := range l.validator.SettingsWarnings(workflow) {
			logger.DebugContext(ctx, "node settings do not match their schema", "workflow_id", workflow.ID, "error", warning)
		}

		workflows = append(workflows, workflow)
	}

	logger.DebugContext(ctx, "workflows loaded", "count", len(workflows))

	return workflows, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidWorkflow, fmt.Sprintf(format, args...))
}
