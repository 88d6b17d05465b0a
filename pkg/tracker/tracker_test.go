package tracker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/identity"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type recordingQueue struct {
	mu       sync.Mutex
	events   []models.PageEvent
	closes   int
	closeErr error
}

func (q *recordingQueue) Add(event models.PageEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, event)
}

func (q *recordingQueue) Close(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closes++

	return q.closeErr
}

func (q *recordingQueue) snapshot() []models.PageEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]models.PageEvent(nil), q.events...)
}

type countingResetter struct {
	resets int
}

func (r *countingResetter) Reset() {
	r.resets++
}

type fixture struct {
	tracker  *Tracker
	page     *page.Page
	queue    *recordingQueue
	store    *storage.Memory
	clock    *clockwork.FakeClock
	resetter *countingResetter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p, err := page.New("https://shop.test/pricing",
		page.WithReferrer("https://google.com/"),
		page.WithTitle("Pricing"),
		page.WithUserAgent(iphoneUA),
		page.WithScreenWidth(390),
	)
	require.NoError(t, err)

	f := &fixture{
		page:     p,
		queue:    &recordingQueue{},
		store:    storage.NewMemory(),
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		resetter: &countingResetter{},
	}

	ident := identity.New(f.store, p.UserAgent(), identity.WithClock(f.clock), identity.WithLogger(log.Discard()))
	f.tracker = New("site-1", p, ident, f.queue, log.Discard(), WithClock(f.clock), WithResetter(f.resetter))

	return f
}

func TestTracker_StartSendsPageview(t *testing.T) {
	f := newFixture(t)

	f.tracker.Start(context.Background())
	f.tracker.Start(context.Background())

	events := f.queue.snapshot()
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.PageEventPageview, ev.EventType)
	assert.Equal(t, "site-1", ev.WebsiteID)
	assert.Equal(t, "/pricing", ev.Page)
	assert.Equal(t, "https://google.com/", ev.Referrer)
	assert.Equal(t, "Pricing", ev.Title)
	assert.Equal(t, models.DeviceMobile, ev.Device)
	assert.Equal(t, 390, ev.ScreenWidth)
	assert.False(t, ev.IsReturning)
	assert.Regexp(t, `^v_`, ev.VisitorID)
	assert.Regexp(t, `^s_`, ev.SessionID)
	assert.Equal(t, f.clock.Now(), ev.Timestamp)
}

func TestTracker_NavigationPageviews(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(context.Background())

	require.NoError(t, f.page.History().PushState("/checkout"))
	require.NoError(t, f.page.History().ReplaceState("/checkout#step-2"))
	require.True(t, f.page.History().Back())

	var pages []string
	for _, ev := range f.queue.snapshot() {
		pages = append(pages, ev.Page)
	}

	assert.Equal(t, []string{"/pricing", "/checkout", "/pricing"}, pages)
}

func TestTracker_IdentifyAndTrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tracker.Track(ctx, "before", nil)
	f.tracker.Identify(ctx, "user-7", map[string]any{"plan": "pro"})
	f.tracker.Track(ctx, "", map[string]any{"ignored": true})
	f.tracker.Track(ctx, "signup", map[string]any{"source": "modal"})

	events := f.queue.snapshot()
	require.Len(t, events, 3)

	assert.Empty(t, events[0].UserID)
	assert.Equal(t, models.PageEventIdentify, events[1].EventType)
	assert.Equal(t, map[string]any{"plan": "pro"}, events[1].Properties)
	assert.Equal(t, "signup", events[2].EventType)
	assert.Equal(t, "user-7", events[2].UserID)
	assert.Equal(t, map[string]any{"source": "modal"}, events[2].Properties)
	assert.Equal(t, models.DeviceMobile, f.tracker.DeviceInfo().Device)
}

func TestTracker_ActivityKeepsSessionAlive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.Start(ctx)

	session := f.queue.snapshot()[0].SessionID

	for i := 0; i < 3; i++ {
		f.clock.Advance(20 * time.Minute)
		f.page.Scroll()
	}

	f.tracker.SendPageview(ctx)

	events := f.queue.snapshot()
	assert.Equal(t, session, events[len(events)-1].SessionID)

	stored, err := f.store.Get(ctx, identity.KeyLastSeen)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(f.clock.Now().UnixMilli(), 10), stored)
}

func TestTracker_Cleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.Start(ctx)

	require.NoError(t, f.tracker.Cleanup(ctx))
	require.NoError(t, f.tracker.Cleanup(ctx))

	assert.Equal(t, 1, f.queue.closes, "exactly one final flush")
	assert.Equal(t, 1, f.resetter.resets)
	assert.Zero(t, f.page.Events().TotalListeners())
	assert.Zero(t, f.page.History().ObserverCount())

	require.NoError(t, f.page.History().PushState("/after"))
	f.tracker.Track(ctx, "late", nil)

	assert.Len(t, f.queue.snapshot(), 1)
}

func TestTracker_CleanupReportsFlushFailure(t *testing.T) {
	f := newFixture(t)
	f.queue.closeErr = errors.New("offline")

	err := f.tracker.Cleanup(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, f.resetter.resets)
}
