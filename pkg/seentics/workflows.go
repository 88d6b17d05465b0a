package seentics

import (
	"context"
	"errors"
	"sync"

	"github.com/seentics/tracker/pkg/actions"
	"github.com/seentics/tracker/pkg/catalog"
	"github.com/seentics/tracker/pkg/conditions"
	"github.com/seentics/tracker/pkg/frequency"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/registry"
	"github.com/seentics/tracker/pkg/sandbox"
	"github.com/seentics/tracker/pkg/scheduler"
	"github.com/seentics/tracker/pkg/telemetry"
	"github.com/seentics/tracker/pkg/trigger"
	"github.com/seentics/tracker/pkg/workflow"
)

// WorkflowTracker owns the workflow engine of a page: the loaded catalog,
// trigger bindings, action timers and the telemetry queue.
type WorkflowTracker struct {
	client *Client

	mu         sync.Mutex
	siteID     string
	workflows  []*models.Workflow
	timers     *scheduler.Timers
	batcher    *telemetry.Batcher[models.TelemetryEvent]
	dispatcher *trigger.Dispatcher
}

// Init loads the active workflows of siteID and starts listening for their
// triggers. An empty site id is ignored. Calling Init again replaces the
// running engine.
func (w *WorkflowTracker) Init(ctx context.Context, siteID string) error {
	c := w.client
	if c == nil || !c.active() {
		return ErrNotInitialized
	}

	logger := c.logger.With("module", "workflow_tracker")

	if siteID == "" {
		logger.DebugContext(ctx, "no site id, workflows disabled")

		return nil
	}

	if err := w.Destroy(ctx); err != nil {
		logger.DebugContext(ctx, "previous engine did not shut down cleanly", "error", err)
	}

	timers := scheduler.NewTimers(c.clock)

	reg := registry.NewRegistry(c.logger)
	conditions.RegisterDefaults(reg)

	sandboxOpts := []sandbox.Option{}
	if c.opts.ScriptTimeout > 0 {
		sandboxOpts = append(sandboxOpts, sandbox.WithScriptTimeout(c.opts.ScriptTimeout))
	}

	actions.RegisterDefaults(reg, &actions.Dependencies{
		Page:    c.page,
		Sandbox: sandbox.New(c.page.Document(), timers, c.logger, sandboxOpts...),
		Timers:  timers,
		Client:  c.transport,
		Track:   c.Track,
		Logger:  c.logger,
	})

	if c.opts.Extend != nil {
		c.opts.Extend(reg)
	}

	loader := catalog.NewLoader(c.transport, c.logger,
		catalog.WithPreview(c.opts.PreviewWorkflow),
		catalog.WithValidator(catalog.NewValidator(reg)),
	)

	workflows, err := loader.Load(ctx, siteID)
	if err != nil {
		timers.StopAll()

		return err
	}

	sinks := telemetry.Multi[models.TelemetryEvent]{telemetry.NewWorkflowSink(c.transport)}
	sinks = append(sinks, c.opts.WorkflowSinks...)

	batcher := telemetry.NewBatcher[models.TelemetryEvent](telemetry.WorkflowConfig(siteID), sinks, timers, c.recorder, c.logger)

	executorOpts := []workflow.Option{
		workflow.WithServerAction(actions.NewServerAction(c.transport)),
		workflow.WithClock(c.clock),
		workflow.WithRecorder(c.recorder),
	}
	if c.opts.Tracer != nil {
		executorOpts = append(executorOpts, workflow.WithTracer(c.opts.Tracer))
	}

	executor := workflow.NewExecutor(
		reg,
		frequency.NewController(c.session, c.durable, c.clock, c.logger),
		batcher,
		w.pageContext(siteID),
		c.logger,
		executorOpts...,
	)

	dispatcher := trigger.NewDispatcher(c.page, executor, c.clock, c.logger)

	w.mu.Lock()
	w.siteID = siteID
	w.workflows = workflows
	w.timers = timers
	w.batcher = batcher
	w.dispatcher = dispatcher
	w.mu.Unlock()

	dispatcher.Start(ctx, workflows)

	logger.DebugContext(ctx, "workflows started", "site_id", siteID, "count", len(workflows))

	return nil
}

// Workflows returns the workflows the engine is running.
func (w *WorkflowTracker) Workflows() []*models.Workflow {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]*models.Workflow(nil), w.workflows...)
}

// Running reports whether triggers are bound.
func (w *WorkflowTracker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dispatcher != nil && w.dispatcher.Running()
}

// Flush sends queued workflow telemetry now.
func (w *WorkflowTracker) Flush(ctx context.Context) error {
	w.mu.Lock()
	batcher := w.batcher
	w.mu.Unlock()

	if batcher == nil {
		return nil
	}

	return batcher.Flush(ctx)
}

// Destroy unbinds every trigger, cancels pending timers and sends queued
// telemetry one last time. Destroying an idle tracker is a no-op.
func (w *WorkflowTracker) Destroy(ctx context.Context) error {
	w.mu.Lock()
	dispatcher, timers, batcher := w.dispatcher, w.timers, w.batcher
	w.dispatcher, w.timers, w.batcher = nil, nil, nil
	w.workflows = nil
	w.mu.Unlock()

	if dispatcher == nil {
		return nil
	}

	dispatcher.Stop()
	timers.StopAll()

	err := batcher.Close(ctx)

	if w.client != nil {
		w.client.transport.Reset()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (w *WorkflowTracker) pageContext(siteID string) workflow.PageContextFunc {
	c := w.client

	return func(ctx context.Context) models.PageContext {
		return models.PageContext{
			SiteID:       siteID,
			URL:          c.page.URL(),
			Path:         c.page.Path(),
			Referrer:     c.page.Referrer(),
			ScreenWidth:  c.page.ScreenWidth(),
			TouchSupport: c.page.TouchSupport(),
			Device:       c.identity.Device(),
			Identity:     c.identity.Identity(ctx),
		}
	}
}
