package seentics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/metrics"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/registry"
	"github.com/seentics/tracker/pkg/storage"
	"github.com/seentics/tracker/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a tracker instance for one page.
type Options struct {
	// SiteID identifies the site on the analytics backend.
	SiteID string `validate:"required"`

	// APIHost is the base URL of the backend, e.g. https://api.seentics.com.
	APIHost string `validate:"required,url"`

	// Page is the page the tracker runs on.
	Page *page.Page `validate:"required"`

	// DurableStore persists visitor, session and once_ever markers.
	// Defaults to an in-memory store.
	DurableStore storage.Store

	// SessionStore holds once_per_session markers. Defaults to a session store
	// that lives as long as the process.
	SessionStore storage.Store

	// PreviewWorkflow is used instead of the live catalog when the workflow
	// site id is "preview".
	PreviewWorkflow *models.Workflow

	// Debug turns on developer diagnostics.
	Debug bool

	Logger     *slog.Logger
	Clock      clockwork.Clock
	HTTPClient *http.Client
	Recorder   metrics.Recorder
	Tracer     trace.Tracer

	// ScriptTimeout bounds custom action scripts.
	ScriptTimeout time.Duration `validate:"gte=0"`

	// PageSinks and WorkflowSinks receive every batch in addition to the backend.
	PageSinks     []telemetry.Sink[models.PageEvent]
	WorkflowSinks []telemetry.Sink[models.TelemetryEvent]

	// Extend registers additional condition and action kinds.
	Extend func(reg *registry.Registry)
}
