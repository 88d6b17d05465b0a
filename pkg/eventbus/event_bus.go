// Package eventbus streams telemetry batches onto a message bus so server-side
// hosts can process them without going through the analytics REST API.
package eventbus

import (
	"context"

	"github.com/seentics/tracker/pkg/models"
)

// Bus topics.
const (
	TopicWorkflowTelemetry = "seentics.telemetry.workflow"
	TopicPageTelemetry     = "seentics.telemetry.page"
)

// Message metadata keys.
const (
	SiteIDMetadataKey = "seentics_site_id"
	EventsMetadataKey = "seentics_events"
)

// BatchHandler processes one batch received from the bus.
type BatchHandler[T any] func(ctx context.Context, batch models.Batch[T]) error
