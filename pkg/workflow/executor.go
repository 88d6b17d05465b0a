// Package workflow walks workflow graphs from a fired trigger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/frequency"
	"github.com/seentics/tracker/pkg/metrics"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/otelhelper"
	"github.com/seentics/tracker/pkg/protocol"
	"github.com/seentics/tracker/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Emitter receives the telemetry of every walk step.
type Emitter interface {
	Add(event models.TelemetryEvent)
}

// EmitterFunc adapts a function to an Emitter.
type EmitterFunc func(event models.TelemetryEvent)

func (f EmitterFunc) Add(event models.TelemetryEvent) {
	f(event)
}

// PageContextFunc snapshots the page and visitor state.
type PageContextFunc func(ctx context.Context) models.PageContext

// Executor runs graph walks. Walks share nothing but the frequency stores, so
// Run is safe to call concurrently.
type Executor struct {
	registry     *registry.Registry
	frequency    *frequency.Controller
	emitter      Emitter
	pageContext  PageContextFunc
	serverAction protocol.Action
	clock        clockwork.Clock
	recorder     metrics.Recorder
	tracer       trace.Tracer
	newRunID     func() string
	logger       *slog.Logger
}

type Option func(*Executor)

// WithServerAction sets the action run for nodes flagged isServerAction.
func WithServerAction(action protocol.Action) Option {
	return func(e *Executor) { e.serverAction = action }
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

func WithRecorder(recorder metrics.Recorder) Option {
	return func(e *Executor) { e.recorder = metrics.OrNoop(recorder) }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithRunIDGenerator replaces the run id source.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Executor) { e.newRunID = fn }
}

func NewExecutor(
	reg *registry.Registry,
	freq *frequency.Controller,
	emitter Emitter,
	pageContext PageContextFunc,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	e := &Executor{
		registry:    reg,
		frequency:   freq,
		emitter:     emitter,
		pageContext: pageContext,
		clock:       clockwork.NewRealClock(),
		recorder:    metrics.Noop{},
		tracer:      otelhelper.Tracer(),
		newRunID:    newRunID,
		logger:      logger.With("module", "workflow_executor"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// run is the state of one graph walk.
type run struct {
	result   models.RunResult
	workflow *models.Workflow
	logger   *slog.Logger
}

// Run walks workflow starting at the fired trigger node. The trigger is
// always reported; the walk itself is skipped when no action of the graph
// can run under its frequency policy.
func (e *Executor) Run(ctx context.Context, workflow *models.Workflow, trigger *models.Node) models.RunResult {
	r := &run{
		result: models.RunResult{
			RunID:      e.newRunID(),
			WorkflowID: workflow.ID,
			TriggerID:  trigger.ID,
		},
		workflow: workflow,
	}
	r.logger = e.logger.With("workflow_id", workflow.ID, "run_id", r.result.RunID, "trigger", trigger.Title)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.walk",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerTypeKey, trigger.Title),
		attribute.String(otelhelper.RunIDKey, r.result.RunID),
	)
	defer span.End()

	e.emit(ctx, r, trigger, models.EventWorkflowTrigger, nil)

	r.result.Outcome = e.walk(ctx, r, trigger)

	span.SetAttributes(attribute.String(otelhelper.RunOutcomeKey, string(r.result.Outcome)))
	e.recorder.WalkFinished(r.result.Outcome)
	r.logger.DebugContext(ctx, "walk finished", "outcome", r.result.Outcome, "executed", len(r.result.ExecutedActions))

	return r.result
}

func (e *Executor) walk(ctx context.Context, r *run, trigger *models.Node) models.RunOutcome {
	if !e.anyEligible(ctx, r.workflow) {
		r.logger.DebugContext(ctx, "no eligible action, walk is inert")

		return models.RunInert
	}

	visited := map[string]bool{trigger.ID: true}
	current := trigger

	for {
		if ctx.Err() != nil {
			r.logger.DebugContext(ctx, "walk abandoned", "node_id", current.ID)

			return models.RunAbandoned
		}

		next, ok := r.workflow.NextNode(current.ID)
		if !ok {
			break
		}

		if visited[next.ID] {
			r.logger.WarnContext(ctx, "cycle detected, ending walk", "node_id", next.ID)

			break
		}

		visited[next.ID] = true
		current = next

		switch {
		case current.IsCondition():
			passed, err := e.evaluate(ctx, r, current)
			if err != nil {
				e.conditionFailed(ctx, r, current, err)

				continue
			}

			if !passed {
				e.emit(ctx, r, current, models.EventWorkflowStopped, func(ev *models.TelemetryEvent) {
					ev.Reason = models.ReasonConditionFailed
				})

				return models.RunStopped
			}
		case current.IsAction():
			e.execute(ctx, r, current)
		}
	}

	if len(r.result.ExecutedActions) == 0 {
		return models.RunExhausted
	}

	total := len(r.workflow.Nodes)

	e.emit(ctx, r, current, models.EventWorkflowCompleted, func(ev *models.TelemetryEvent) {
		ev.TotalNodes = total
	})

	return models.RunCompleted
}

func (e *Executor) anyEligible(ctx context.Context, workflow *models.Workflow) bool {
	for _, node := range workflow.ActionNodes() {
		if e.frequency.CanExecute(ctx, workflow.ID, node) {
			return true
		}
	}

	return false
}

// evaluate runs a condition node and reports its verdict. Unknown kinds pass.
// A condition that cannot be built or evaluated returns an error and emits
// no verdict.
func (e *Executor) evaluate(ctx context.Context, r *run, node *models.Node) (bool, error) {
	passed := true

	condition, err := e.registry.CreateCondition(node)

	switch {
	case errors.Is(err, registry.ErrNotRegistered):
		r.logger.DebugContext(ctx, "unknown condition passes", "node_id", node.ID, "title", node.Title)
	case err != nil:
		return false, err
	default:
		passed, err = e.check(ctx, r, node, condition)
		if err != nil {
			return false, err
		}
	}

	result := models.ResultPassed
	if !passed {
		result = models.ResultFailed
	}

	e.emit(ctx, r, node, models.EventConditionEvaluated, func(ev *models.TelemetryEvent) {
		ev.Result = result
	})

	return passed, nil
}

func (e *Executor) check(ctx context.Context, r *run, node *models.Node, condition protocol.Condition) (passed bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered}
		}
	}()

	return condition.Evaluate(ctx, e.execContext(ctx, r, node))
}

// conditionFailed reports a broken condition node the way a failed action is
// reported. The walk goes on past it.
func (e *Executor) conditionFailed(ctx context.Context, r *run, node *models.Node, err error) {
	r.logger.DebugContext(ctx, "condition failed to evaluate", "node_id", node.ID, "title", node.Title, "error", err)

	e.emit(ctx, r, node, models.EventActionFailed, func(ev *models.TelemetryEvent) {
		ev.Status = models.StatusError
		ev.Error = models.TruncateError(err.Error())
	})
}

// execute runs an action node unless its frequency policy forbids it.
// Failures are reported and never end the walk.
func (e *Executor) execute(ctx context.Context, r *run, node *models.Node) {
	if !e.frequency.CanExecute(ctx, r.workflow.ID, node) {
		r.logger.DebugContext(ctx, "action skipped by frequency policy", "node_id", node.ID)

		return
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.action",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTitleKey, node.Title),
		attribute.Bool(otelhelper.ServerActionKey, node.IsServerAction),
	)
	defer span.End()

	e.emit(ctx, r, node, models.EventActionStarted, nil)

	started := e.clock.Now()
	err := e.perform(ctx, r, node)
	elapsed := e.clock.Since(started)

	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))
		r.logger.DebugContext(ctx, "action failed", "node_id", node.ID, "title", node.Title, "error", err)
		e.recorder.ActionFinished(node.Title, models.StatusError, elapsed)

		r.result.FailedActions = append(r.result.FailedActions, node.ID)

		e.emit(ctx, r, node, models.EventActionFailed, func(ev *models.TelemetryEvent) {
			ev.Status = models.StatusError
			ev.Error = models.TruncateError(err.Error())
		})

		return
	}

	e.frequency.Record(ctx, r.workflow.ID, node)
	e.recorder.ActionFinished(node.Title, models.StatusSuccess, elapsed)

	r.result.ExecutedActions = append(r.result.ExecutedActions, node.ID)

	e.emit(ctx, r, node, models.EventActionCompleted, func(ev *models.TelemetryEvent) {
		ev.Status = models.StatusSuccess
	})
}

func (e *Executor) perform(ctx context.Context, r *run, node *models.Node) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered}
		}
	}()

	execCtx := e.execContext(ctx, r, node)

	if node.IsServerAction {
		if e.serverAction == nil {
			return nil
		}

		return e.serverAction.Execute(ctx, execCtx)
	}

	action, err := e.registry.CreateAction(node)
	if errors.Is(err, registry.ErrNotRegistered) {
		r.logger.DebugContext(ctx, "unknown action is a no-op", "node_id", node.ID, "title", node.Title)

		return nil
	}

	if err != nil {
		return err
	}

	return action.Execute(ctx, execCtx)
}

func (e *Executor) execContext(ctx context.Context, r *run, node *models.Node) models.ExecutionContext {
	return models.ExecutionContext{
		RunID:      r.result.RunID,
		WorkflowID: r.workflow.ID,
		NodeID:     node.ID,
		NodeTitle:  node.Title,
		Page:       e.pageContext(ctx),
	}
}

func (e *Executor) emit(ctx context.Context, r *run, node *models.Node, event models.WorkflowEventType, fill func(*models.TelemetryEvent)) {
	page := e.pageContext(ctx)

	ev := models.TelemetryEvent{
		Website:    page.SiteID,
		Visitor:    page.Identity.VisitorID,
		Session:    page.Identity.SessionID,
		Type:       models.TelemetryType,
		WorkflowID: r.workflow.ID,
		NodeID:     node.ID,
		NodeTitle:  node.Title,
		Event:      event,
		Timestamp:  e.clock.Now().UTC(),
		RunID:      r.result.RunID,
	}

	if fill != nil {
		fill(&ev)
	}

	e.emitter.Add(ev)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// PanicError reports a condition or action node that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node panicked: %v", e.Value)
}
