// Package telemetry batches analytics and workflow events and ships them
// through pluggable sinks.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seentics/tracker/pkg/metrics"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/scheduler"
)

// Flush delays of the two channels.
const (
	PageFlushDelay     = 100 * time.Millisecond
	WorkflowFlushDelay = 2000 * time.Millisecond
)

// Sink transmits one batch.
type Sink[T any] interface {
	Send(ctx context.Context, batch models.Batch[T]) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[T any] func(ctx context.Context, batch models.Batch[T]) error

func (f SinkFunc[T]) Send(ctx context.Context, batch models.Batch[T]) error {
	return f(ctx, batch)
}

// Config describes one batching channel.
type Config struct {
	SiteID  string
	Channel metrics.Channel
	Delay   time.Duration
	// Requeue puts a failed batch back at the front of the queue.
	Requeue bool
}

// PageConfig is the page analytics channel: short delay, failed batches are retried.
func PageConfig(siteID string) Config {
	return Config{SiteID: siteID, Channel: metrics.ChannelPage, Delay: PageFlushDelay, Requeue: true}
}

// WorkflowConfig is the workflow channel: long delay, failed batches are dropped.
func WorkflowConfig(siteID string) Config {
	return Config{SiteID: siteID, Channel: metrics.ChannelWorkflow, Delay: WorkflowFlushDelay}
}

// Batcher accumulates events and flushes them once the delay after the first
// queued event elapses.
type Batcher[T any] struct {
	config   Config
	sink     Sink[T]
	timers   *scheduler.Timers
	recorder metrics.Recorder
	logger   *slog.Logger

	mu        sync.Mutex
	queue     []T
	scheduled bool
	cancel    func()
	closed    bool
}

// NewBatcher returns a batcher flushing into sink. Timers are armed on the
// given set so a page teardown cancels them with everything else.
func NewBatcher[T any](config Config, sink Sink[T], timers *scheduler.Timers, recorder metrics.Recorder, logger *slog.Logger) *Batcher[T] {
	if timers == nil {
		timers = scheduler.NewTimers(nil)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Batcher[T]{
		config:   config,
		sink:     sink,
		timers:   timers,
		recorder: metrics.OrNoop(recorder),
		logger:   logger.With("module", "telemetry", "channel", string(config.Channel), "site_id", config.SiteID),
	}
}

// Add queues an event and schedules a flush if none is pending. Events added
// after Close are dropped.
func (b *Batcher[T]) Add(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.queue = append(b.queue, event)

	if b.scheduled {
		return
	}

	b.scheduled = true
	b.cancel = b.timers.AfterFunc(b.config.Delay, b.onTimer)
}

// Len returns the number of queued events.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}

// Flush drains the queue and sends it as one batch. An empty queue sends nothing.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	return b.flush(ctx, b.config.Requeue)
}

// Close cancels the pending flush, sends whatever is queued one last time
// and discards the batcher.
func (b *Batcher[T]) Close(ctx context.Context) error {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return nil
	}

	b.closed = true
	b.scheduled = false

	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}

	b.mu.Unlock()

	return b.flush(ctx, false)
}

func (b *Batcher[T]) onTimer() {
	b.mu.Lock()
	b.scheduled = false
	b.cancel = nil
	b.mu.Unlock()

	_ = b.flush(context.Background(), b.config.Requeue)
}

func (b *Batcher[T]) flush(ctx context.Context, requeue bool) error {
	b.mu.Lock()

	if len(b.queue) == 0 {
		b.mu.Unlock()

		return nil
	}

	events := b.queue
	b.queue = nil
	b.mu.Unlock()

	err := b.sink.Send(ctx, models.Batch[T]{SiteID: b.config.SiteID, Events: events})
	if err == nil {
		b.recorder.TelemetryDelivered(b.config.Channel, len(events))

		return nil
	}

	b.recorder.TelemetryFailed(b.config.Channel, len(events))

	if !requeue {
		b.logger.DebugContext(ctx, "dropped telemetry batch", "events", len(events), "error", err)

		return err
	}

	b.mu.Lock()
	if !b.closed {
		b.queue = append(events, b.queue...)
	}
	b.mu.Unlock()

	b.logger.DebugContext(ctx, "requeued telemetry batch", "events", len(events), "error", err)

	return err
}
