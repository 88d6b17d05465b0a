// Package tracker is the page analytics companion of the workflow engine:
// pageviews, identify and custom events, and session keep-alive on activity.
package tracker

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/identity"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/page"
)

// ActivityThrottle bounds how often high-frequency signals (scroll, mouse,
// touch) refresh the session.
const ActivityThrottle = time.Second

// Queue buffers page events until they are shipped.
type Queue interface {
	Add(event models.PageEvent)
	Close(ctx context.Context) error
}

// Resetter clears a transport's in-flight request table.
type Resetter interface {
	Reset()
}

type Tracker struct {
	siteID   string
	page     *page.Page
	identity *identity.Provider
	queue    Queue
	resetter Resetter
	clock    clockwork.Clock
	logger   *slog.Logger

	mu           sync.Mutex
	started      bool
	closed       bool
	teardown     []func()
	lastPath     string
	lastActivity time.Time
	userID       string
}

type Option func(*Tracker)

func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithResetter sets the transport whose dedup table is cleared on cleanup.
func WithResetter(resetter Resetter) Option {
	return func(t *Tracker) { t.resetter = resetter }
}

func New(siteID string, p *page.Page, ident *identity.Provider, queue Queue, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		siteID:   siteID,
		page:     p,
		identity: ident,
		queue:    queue,
		clock:    clockwork.NewRealClock(),
		logger:   logger.With("module", "page_tracker", "site_id", siteID),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start sends the initial pageview and binds activity and navigation listeners.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()

	if t.started || t.closed {
		t.mu.Unlock()

		return
	}

	t.started = true
	t.lastPath = t.page.Path()

	events := t.page.Events()
	refresh := func(page.Event) { t.identity.RefreshActivity(ctx) }
	throttled := func(page.Event) { t.throttledActivity(ctx) }

	t.teardown = []func(){
		events.AddListener(page.EventClick, refresh),
		events.AddListener(page.EventKeyPress, refresh),
		events.AddListener(page.EventScroll, throttled),
		events.AddListener(page.EventMouseMove, throttled),
		events.AddListener(page.EventTouchStart, throttled),
		t.page.History().Observe(func(nav page.Navigation) { t.onNavigation(ctx, nav) }),
	}
	t.mu.Unlock()

	t.SendPageview(ctx)
}

// SendPageview queues a pageview of the current location.
func (t *Tracker) SendPageview(ctx context.Context) {
	t.add(t.event(ctx, models.PageEventPageview, nil))
}

// Identify attaches a user id to every following event.
func (t *Tracker) Identify(ctx context.Context, userID string, traits map[string]any) {
	t.mu.Lock()
	t.userID = userID
	t.mu.Unlock()

	t.add(t.event(ctx, models.PageEventIdentify, traits))
}

// Track queues a custom event.
func (t *Tracker) Track(ctx context.Context, name string, properties map[string]any) {
	if name == "" {
		return
	}

	t.add(t.event(ctx, name, properties))
}

func (t *Tracker) DeviceInfo() models.DeviceInfo {
	return t.identity.Device()
}

// Cleanup detaches listeners, flushes queued events one last time and clears
// the in-flight request table. Later calls are no-ops.
func (t *Tracker) Cleanup(ctx context.Context) error {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()

		return nil
	}

	t.closed = true
	teardown := t.teardown
	t.teardown = nil
	t.mu.Unlock()

	for _, remove := range teardown {
		remove()
	}

	err := t.queue.Close(ctx)

	if t.resetter != nil {
		t.resetter.Reset()
	}

	if err != nil {
		t.logger.DebugContext(ctx, "final flush failed", "error", err)
	}

	return err
}

func (t *Tracker) onNavigation(ctx context.Context, nav page.Navigation) {
	path := nav.URL.Path
	if path == "" {
		path = "/"
	}

	t.mu.Lock()
	changed := path != t.lastPath
	t.lastPath = path
	t.mu.Unlock()

	if changed {
		t.SendPageview(ctx)
	}
}

func (t *Tracker) throttledActivity(ctx context.Context) {
	t.mu.Lock()

	now := t.clock.Now()
	if now.Sub(t.lastActivity) < ActivityThrottle {
		t.mu.Unlock()

		return
	}

	t.lastActivity = now
	t.mu.Unlock()

	t.identity.RefreshActivity(ctx)
}

func (t *Tracker) add(event models.PageEvent) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return
	}

	t.queue.Add(event)
}

func (t *Tracker) event(ctx context.Context, eventType string, properties map[string]any) models.PageEvent {
	id := t.identity.Identity(ctx)
	device := t.identity.Device()

	t.mu.Lock()
	userID := t.userID
	t.mu.Unlock()

	var props map[string]any
	if len(properties) > 0 {
		props = maps.Clone(properties)
	}

	return models.PageEvent{
		WebsiteID:   t.siteID,
		VisitorID:   id.VisitorID,
		SessionID:   id.SessionID,
		EventType:   eventType,
		Page:        t.page.Path(),
		Referrer:    t.page.Referrer(),
		Title:       t.page.Title(),
		UserID:      userID,
		Properties:  props,
		Browser:     device.Browser,
		Device:      device.Device,
		OS:          device.OS,
		ScreenWidth: t.page.ScreenWidth(),
		IsReturning: id.IsReturning,
		Timestamp:   t.clock.Now().UTC(),
	}
}
