// Package trigger binds page events to the trigger nodes of loaded workflows.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/protocol"
	"github.com/seentics/tracker/pkg/scheduler"
	"golang.org/x/net/html"
)

const (
	// ExitIntentThreshold is the distance in pixels from the top of the
	// viewport at which the pointer counts as leaving.
	ExitIntentThreshold = 5

	ExitIntentThrottle   = 50 * time.Millisecond
	ElementClickThrottle = 100 * time.Millisecond
)

// Runner starts one graph walk.
type Runner interface {
	Run(ctx context.Context, workflow *models.Workflow, trigger *models.Node) models.RunResult
}

// binding is a trigger node of a loaded workflow.
type binding struct {
	workflow *models.Workflow
	node     *models.Node
}

type clickBinding struct {
	binding
	selector cascadia.SelectorGroup
}

// Dispatcher fires every matching trigger node across all loaded workflows.
// Walks run on the goroutine that observed the event; time-spent walks run on
// timer goroutines.
type Dispatcher struct {
	page   *page.Page
	runner Runner
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	timers    *scheduler.Timers
	teardown  []func()
	lastPath  string
	lastExit  time.Time
	lastClick time.Time

	pageViews   []binding
	exitIntents []binding
	clicks      []clickBinding
	funnels     []binding
}

func NewDispatcher(p *page.Page, runner Runner, clock clockwork.Clock, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Dispatcher{
		page:   p,
		runner: runner,
		clock:  clock,
		logger: logger.With("module", "trigger_dispatcher"),
	}
}

// Start binds the triggers of workflows and fires Page View for the current
// page. Starting a running dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context, workflows []*models.Workflow) {
	d.mu.Lock()

	if d.running {
		d.mu.Unlock()

		return
	}

	d.running = true
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.timers = scheduler.NewTimers(d.clock)
	d.lastPath = d.page.Path()
	d.lastExit, d.lastClick = time.Time{}, time.Time{}
	d.pageViews, d.exitIntents, d.clicks, d.funnels = nil, nil, nil, nil

	var timeSpent []binding

	for _, workflow := range workflows {
		for _, node := range workflow.Nodes {
			if !node.IsTrigger() {
				continue
			}

			b := binding{workflow: workflow, node: node}

			switch node.Title {
			case models.TriggerPageView:
				d.pageViews = append(d.pageViews, b)
			case models.TriggerTimeSpent:
				timeSpent = append(timeSpent, b)
			case models.TriggerExitIntent:
				d.exitIntents = append(d.exitIntents, b)
			case models.TriggerElementClick:
				if click, ok := d.clickBinding(b); ok {
					d.clicks = append(d.clicks, click)
				}
			case models.TriggerFunnel:
				if d.funnelBound(b) {
					d.funnels = append(d.funnels, b)
				}
			default:
				d.logger.DebugContext(ctx, "unknown trigger ignored", "workflow_id", workflow.ID, "title", node.Title)
			}
		}
	}

	events := d.page.Events()

	d.teardown = []func(){
		d.page.History().Observe(d.onNavigation),
		events.AddListener(page.EventMouseMove, d.onMouseMove),
		events.AddListener(page.EventClick, d.onClick),
		events.AddListener(page.EventFunnel, d.onFunnel),
	}

	for _, b := range timeSpent {
		d.armTimeSpent(b)
	}

	d.logger.DebugContext(ctx, "triggers bound",
		"page_view", len(d.pageViews),
		"time_spent", len(timeSpent),
		"exit_intent", len(d.exitIntents),
		"element_click", len(d.clicks),
		"funnel", len(d.funnels),
	)

	pageViews, runCtx := d.pageViews, d.ctx
	d.mu.Unlock()

	d.fire(runCtx, pageViews)
}

// Stop cancels pending timers, removes every listener and the navigation
// observer, and abandons walks still in flight.
func (d *Dispatcher) Stop() {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()

		return
	}

	d.running = false
	teardown := d.teardown
	d.teardown = nil
	timers := d.timers
	cancel := d.cancel
	d.mu.Unlock()

	timers.StopAll()

	for _, remove := range teardown {
		remove()
	}

	cancel()
}

// Running reports whether the dispatcher is bound to the page.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running
}

func (d *Dispatcher) clickBinding(b binding) (clickBinding, bool) {
	var s struct {
		Selector string `mapstructure:"selector"`
	}

	if err := protocol.DecodeSettings(b.node.Settings, &s); err != nil || s.Selector == "" {
		d.logger.Debug("element click trigger without selector", "workflow_id", b.workflow.ID, "node_id", b.node.ID)

		return clickBinding{}, false
	}

	sel, err := cascadia.ParseGroup(s.Selector)
	if err != nil {
		d.logger.Debug("invalid element click selector", "workflow_id", b.workflow.ID, "node_id", b.node.ID, "error", err)

		return clickBinding{}, false
	}

	return clickBinding{binding: b, selector: sel}, true
}

// funnelBound reports whether a funnel node names both the funnel and the step.
func (d *Dispatcher) funnelBound(b binding) bool {
	if b.node.StringSetting("funnelId") == "" || b.node.StringSetting("eventType") == "" {
		d.logger.Debug("funnel trigger without funnelId or eventType", "workflow_id", b.workflow.ID, "node_id", b.node.ID)

		return false
	}

	return true
}

// armTimeSpent schedules a node once. Navigation does not reset it.
func (d *Dispatcher) armTimeSpent(b binding) {
	var s struct {
		Seconds float64 `mapstructure:"seconds"`
	}

	if err := protocol.DecodeSettings(b.node.Settings, &s); err != nil || s.Seconds < 0 {
		d.logger.Debug("invalid time spent trigger", "workflow_id", b.workflow.ID, "node_id", b.node.ID)

		return
	}

	ctx := d.ctx
	delay := time.Duration(s.Seconds * float64(time.Second))

	d.timers.AfterFunc(delay, func() {
		d.fire(ctx, []binding{b})
	})
}

func (d *Dispatcher) onNavigation(nav page.Navigation) {
	path := nav.URL.Path
	if path == "" {
		path = "/"
	}

	d.mu.Lock()

	if !d.running || path == d.lastPath {
		d.mu.Unlock()

		return
	}

	d.lastPath = path
	bindings, ctx := d.pageViews, d.ctx
	d.mu.Unlock()

	d.fire(ctx, bindings)
}

func (d *Dispatcher) onMouseMove(event page.Event) {
	d.mu.Lock()

	now := d.clock.Now()
	if !d.running || now.Sub(d.lastExit) < ExitIntentThrottle {
		d.mu.Unlock()

		return
	}

	d.lastExit = now
	bindings, ctx := d.exitIntents, d.ctx
	d.mu.Unlock()

	if event.Y > ExitIntentThreshold {
		return
	}

	d.fire(ctx, bindings)
}

func (d *Dispatcher) onClick(event page.Event) {
	d.mu.Lock()

	now := d.clock.Now()
	if !d.running || now.Sub(d.lastClick) < ElementClickThrottle {
		d.mu.Unlock()

		return
	}

	d.lastClick = now
	clicks, ctx := d.clicks, d.ctx
	d.mu.Unlock()

	var matched []binding

	for _, click := range clicks {
		if matchesTarget(click.selector, event.Target) {
			matched = append(matched, click.binding)
		}
	}

	d.fire(ctx, matched)
}

func (d *Dispatcher) onFunnel(event page.Event) {
	funnelID, _ := event.Detail["funnel_id"].(string)
	eventType, _ := event.Detail["event_type"].(string)

	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()

		return
	}

	funnels, ctx := d.funnels, d.ctx
	d.mu.Unlock()

	var matched []binding

	for _, b := range funnels {
		if b.node.StringSetting("funnelId") == funnelID && b.node.StringSetting("eventType") == eventType {
			matched = append(matched, b)
		}
	}

	d.fire(ctx, matched)
}

func (d *Dispatcher) fire(ctx context.Context, bindings []binding) {
	for _, b := range bindings {
		if ctx.Err() != nil {
			return
		}

		d.runner.Run(ctx, b.workflow, b.node)
	}
}

// matchesTarget reports whether the clicked element itself matches sel.
// Clicks on descendants of a matching element do not count.
func matchesTarget(sel cascadia.SelectorGroup, target *html.Node) bool {
	return target != nil && target.Type == html.ElementNode && sel.Match(target)
}
