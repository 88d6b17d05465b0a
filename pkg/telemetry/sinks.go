package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/transport"
)

// PageSink ships page analytics: through the beacon when the host offers one,
// else through the deduplicating, retrying POST path.
type PageSink struct {
	client *transport.Client
	beacon page.Beacon
}

func NewPageSink(client *transport.Client, beacon page.Beacon) *PageSink {
	return &PageSink{client: client, beacon: beacon}
}

func (s *PageSink) Send(ctx context.Context, batch models.Batch[models.PageEvent]) error {
	if s.beacon != nil {
		body, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("failed to encode page batch: %w", err)
		}

		if s.beacon.SendBeacon(s.client.URL(transport.PathPageBatch), body) {
			return nil
		}
	}

	return s.client.PostJSON(ctx, transport.PathPageBatch, batch)
}

// WorkflowSink ships workflow telemetry with a keep-alive POST.
type WorkflowSink struct {
	client *transport.Client
}

func NewWorkflowSink(client *transport.Client) *WorkflowSink {
	return &WorkflowSink{client: client}
}

func (s *WorkflowSink) Send(ctx context.Context, batch models.Batch[models.TelemetryEvent]) error {
	return s.client.PostKeepalive(ctx, transport.PathWorkflowBatch, batch)
}

// Multi sends every batch to all sinks. It fails if any sink failed.
type Multi[T any] []Sink[T]

func (m Multi[T]) Send(ctx context.Context, batch models.Batch[T]) error {
	var errs []error

	for _, sink := range m {
		if err := sink.Send(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
