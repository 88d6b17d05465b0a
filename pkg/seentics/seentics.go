// Package seentics is the entry point of the tracker: Init wires identity,
// page analytics and the workflow engine for one page and returns the facade
// the host uses to talk to them.
package seentics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/actions"
	"github.com/seentics/tracker/pkg/identity"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/metrics"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/scheduler"
	"github.com/seentics/tracker/pkg/storage"
	"github.com/seentics/tracker/pkg/telemetry"
	"github.com/seentics/tracker/pkg/tracker"
	"github.com/seentics/tracker/pkg/transport"
)

// ErrNotInitialized is returned by calls on a tracker that was never
// initialized or has been cleaned up.
var ErrNotInitialized = errors.New("seentics: tracker not initialized")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Client is the facade of one page's tracker.
type Client struct {
	opts      Options
	page      *page.Page
	clock     clockwork.Clock
	logger    *slog.Logger
	recorder  metrics.Recorder
	durable   storage.Store
	session   storage.Store
	transport *transport.Client
	identity  *identity.Provider
	timers    *scheduler.Timers
	tracker   *tracker.Tracker
	workflows *WorkflowTracker

	mu           sync.Mutex
	closed       bool
	removeUnload func()
}

// Init validates opts, starts page analytics and sends the initial pageview.
// Workflows start with Workflows().Init.
func Init(ctx context.Context, opts Options) (*Client, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	c := &Client{
		opts:     opts,
		page:     opts.Page,
		clock:    opts.Clock,
		logger:   opts.Logger,
		recorder: metrics.OrNoop(opts.Recorder),
		durable:  opts.DurableStore,
		session:  opts.SessionStore,
	}

	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}

	if c.logger == nil {
		c.logger = log.New(os.Stderr, log.TrackerLevel(opts.Debug))
	}

	if c.durable == nil {
		c.durable = storage.NewMemory()
	}

	if c.session == nil {
		c.session = storage.NewSession(0)
	}

	transportOpts := []transport.Option{transport.WithLogger(c.logger)}
	if opts.HTTPClient != nil {
		transportOpts = append(transportOpts, transport.WithHTTPClient(opts.HTTPClient))
	}

	c.transport = transport.New(opts.APIHost, transportOpts...)
	c.identity = identity.New(c.durable, c.page.UserAgent(),
		identity.WithClock(c.clock),
		identity.WithLogger(c.logger),
	)
	c.timers = scheduler.NewTimers(c.clock)

	pageSinks := telemetry.Multi[models.PageEvent]{telemetry.NewPageSink(c.transport, c.page.Beacon())}
	pageSinks = append(pageSinks, opts.PageSinks...)

	pageBatcher := telemetry.NewBatcher[models.PageEvent](telemetry.PageConfig(opts.SiteID), pageSinks, c.timers, c.recorder, c.logger)

	c.tracker = tracker.New(opts.SiteID, c.page, c.identity, pageBatcher, c.logger,
		tracker.WithClock(c.clock),
		tracker.WithResetter(c.transport),
	)
	c.workflows = &WorkflowTracker{client: c}

	c.removeUnload = c.page.Events().AddListener(page.EventPageHide, func(page.Event) {
		_ = c.Cleanup(context.Background())
	})

	c.tracker.Start(ctx)

	c.logger.DebugContext(ctx, "tracker initialized", "site_id", opts.SiteID, "visitor_id", c.identity.VisitorID(ctx))

	return c, nil
}

// Identify attaches a user id and traits to the visitor.
func (c *Client) Identify(ctx context.Context, userID string, traits map[string]any) {
	if c.active() {
		c.tracker.Identify(ctx, userID, traits)
	}
}

// Track records a custom event.
func (c *Client) Track(ctx context.Context, name string, properties map[string]any) {
	if c.active() {
		c.tracker.Track(ctx, name, properties)
	}
}

// SendPageview records a pageview of the current location.
func (c *Client) SendPageview(ctx context.Context) {
	if c.active() {
		c.tracker.SendPageview(ctx)
	}
}

func (c *Client) DeviceInfo() models.DeviceInfo {
	if c == nil {
		return models.DeviceInfo{}
	}

	return c.identity.Device()
}

// Identity returns the visitor and session of the page view.
func (c *Client) Identity(ctx context.Context) models.Identity {
	if c == nil {
		return models.Identity{}
	}

	return c.identity.Identity(ctx)
}

// Workflows returns the workflow engine handle.
func (c *Client) Workflows() *WorkflowTracker {
	if c == nil {
		return &WorkflowTracker{}
	}

	return c.workflows
}

// FunnelEvent dispatches a funnel step to Funnel triggers.
func (c *Client) FunnelEvent(funnelID, eventType string) {
	if c.active() {
		c.page.DispatchFunnelEvent(funnelID, eventType)
	}
}

// CloseModal removes every modal and banner injected by workflows.
func (c *Client) CloseModal() {
	if c.active() {
		actions.CloseAll(c.page.Document())
	}
}

// Wait blocks until background requests (webhooks, server actions, beacons)
// have finished.
func (c *Client) Wait() {
	if c != nil {
		c.transport.Wait()
	}
}

// Cleanup tears the tracker down: workflows are destroyed, listeners and
// timers removed and queued analytics flushed once. It runs on page unload.
func (c *Client) Cleanup(ctx context.Context) error {
	if c == nil {
		return ErrNotInitialized
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	removeUnload := c.removeUnload
	c.mu.Unlock()

	removeUnload()

	err := errors.Join(c.workflows.Destroy(ctx), c.tracker.Cleanup(ctx))
	c.timers.StopAll()

	if err != nil {
		c.logger.DebugContext(ctx, "cleanup finished with errors", "error", err)
	}

	return err
}

func (c *Client) active() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed
}
