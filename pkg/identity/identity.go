// Package identity establishes the durable visitor and the rolling session of
// the current page view and classifies the visitor's device.
package identity

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/storage"
)

// Durable storage keys.
const (
	KeyVisitorID = "seentics_visitor_id"
	KeySessionID = "seentics_session_id"
	KeyLastSeen  = "seentics_session_last"
	KeyReturning = "seentics_returning"
)

const (
	// SessionWindow is the inactivity gap after which a new session starts.
	SessionWindow = 30 * time.Minute

	// activityWriteInterval throttles last-seen writes.
	activityWriteInterval = time.Second

	visitorPrefix = "v_"
	sessionPrefix = "s_"
)

// Provider hands out the visitor and session identifiers. Storage failures are
// never surfaced: the provider falls back to identifiers held in memory for the
// lifetime of the page view.
type Provider struct {
	store     storage.Store
	clock     clockwork.Clock
	logger    *slog.Logger
	userAgent string

	mu        sync.Mutex
	visitorID string
	sessionID string
	lastSeen  time.Time
	lastWrite time.Time
	returning *bool

	deviceOnce sync.Once
	device     models.DeviceInfo
}

type Option func(*Provider)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Provider) { p.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// New returns a provider persisting to the durable store.
func New(store storage.Store, userAgent string, opts ...Option) *Provider {
	p := &Provider{
		store:     store,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		userAgent: userAgent,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With("module", "identity")

	return p
}

// VisitorID returns the durable visitor id, creating and persisting one on
// first use or when the stored value is malformed.
func (p *Provider) VisitorID(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.visitorID != "" {
		return p.visitorID
	}

	if stored, ok := storage.Lookup(ctx, p.store, KeyVisitorID); ok && wellFormed(stored, visitorPrefix) {
		p.visitorID = stored

		return stored
	}

	p.visitorID = newID(visitorPrefix)
	p.persist(ctx, KeyVisitorID, p.visitorID)

	return p.visitorID
}

// SessionID returns the current session id. A session survives as long as the
// visitor was seen within SessionWindow; otherwise a new one is started.
func (p *Provider) SessionID(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resolveSession(ctx, p.clock.Now())
}

// RefreshActivity keeps the session alive. It is cheap enough to call on every
// user interaction; the last-seen write happens at most once per second.
func (p *Provider) RefreshActivity(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()

	if p.sessionID == "" || now.Sub(p.lastSeen) >= SessionWindow {
		p.resolveSession(ctx, now)

		return
	}

	p.lastSeen = now

	if now.Sub(p.lastWrite) < activityWriteInterval {
		return
	}

	p.lastWrite = now
	p.persist(ctx, KeyLastSeen, formatMillis(now))
}

// IsReturning reports whether the visitor had been seen before this page view.
// The flag is derived once and written on first observation.
func (p *Provider) IsReturning(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.returning != nil {
		return *p.returning
	}

	stored, ok := storage.Lookup(ctx, p.store, KeyReturning)
	returning := ok && stored == "true"
	p.returning = &returning

	if !ok {
		p.persist(ctx, KeyReturning, "true")
	}

	return returning
}

// Device classifies the user agent once per provider.
func (p *Provider) Device() models.DeviceInfo {
	p.deviceOnce.Do(func() {
		p.device = ClassifyDevice(p.userAgent)
	})

	return p.device
}

// Identity returns the visitor, session and returning flag together.
func (p *Provider) Identity(ctx context.Context) models.Identity {
	return models.Identity{
		VisitorID:   p.VisitorID(ctx),
		SessionID:   p.SessionID(ctx),
		IsReturning: p.IsReturning(ctx),
	}
}

func (p *Provider) resolveSession(ctx context.Context, now time.Time) string {
	storedID, okID := storage.Lookup(ctx, p.store, KeySessionID)
	storedLast, okLast := storage.Lookup(ctx, p.store, KeyLastSeen)

	switch {
	case okID && okLast && wellFormed(storedID, sessionPrefix) && within(parseMillis(storedLast), now):
		p.sessionID = storedID
	case p.sessionID != "" && within(p.lastSeen, now):
		// storage lost the session but this page view still holds it
	default:
		p.sessionID = newID(sessionPrefix)
		p.persist(ctx, KeySessionID, p.sessionID)

		p.logger.DebugContext(ctx, "started session", "session_id", p.sessionID)
	}

	p.lastSeen = now
	p.lastWrite = now
	p.persist(ctx, KeyLastSeen, formatMillis(now))

	return p.sessionID
}

func (p *Provider) persist(ctx context.Context, key, value string) {
	if p.store == nil {
		return
	}

	if err := p.store.Set(ctx, key, value); err != nil {
		p.logger.DebugContext(ctx, "storage write failed, keeping value in memory", "key", key, "error", err)
	}
}

func within(last, now time.Time) bool {
	return !last.IsZero() && now.Sub(last) < SessionWindow
}

func wellFormed(id, prefix string) bool {
	return len(id) > len(prefix) && strings.HasPrefix(id, prefix) && !strings.ContainsAny(id, " \t\n")
}

// newID returns a time-ordered random token.
func newID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return prefix + id.String()
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}
