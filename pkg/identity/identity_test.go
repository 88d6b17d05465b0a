package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const desktopUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

func newProvider(store storage.Store, clock clockwork.Clock) *Provider {
	return New(store, desktopUA, WithClock(clock), WithLogger(log.Discard()))
}

func TestProvider_VisitorIDIsStable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clock := clockwork.NewFakeClock()

	first := newProvider(store, clock).VisitorID(ctx)
	assert.True(t, strings.HasPrefix(first, "v_"))

	second := newProvider(store, clock).VisitorID(ctx)
	assert.Equal(t, first, second)

	stored, err := store.Get(ctx, KeyVisitorID)
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestProvider_MalformedVisitorIDIsReplaced(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, KeyVisitorID, "garbage"))

	id := newProvider(store, clockwork.NewFakeClock()).VisitorID(ctx)

	assert.NotEqual(t, "garbage", id)
	assert.True(t, strings.HasPrefix(id, "v_"))
}

func TestProvider_SessionWindow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clock := clockwork.NewFakeClock()
	provider := newProvider(store, clock)

	visitor := provider.VisitorID(ctx)
	session := provider.SessionID(ctx)
	assert.True(t, strings.HasPrefix(session, "s_"))

	clock.Advance(29 * time.Minute)
	assert.Equal(t, session, provider.SessionID(ctx), "gap below the window keeps the session")

	clock.Advance(29 * time.Minute)
	assert.Equal(t, session, provider.SessionID(ctx), "the previous read refreshed last-seen")

	clock.Advance(31 * time.Minute)

	rotated := provider.SessionID(ctx)
	assert.NotEqual(t, session, rotated)
	assert.Equal(t, visitor, provider.VisitorID(ctx))

	fresh := newProvider(store, clock)
	assert.Equal(t, rotated, fresh.SessionID(ctx), "another page view in the window shares the session")
	assert.Equal(t, visitor, fresh.VisitorID(ctx))
}

func TestProvider_RefreshActivityThrottlesWrites(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clock := clockwork.NewFakeClock()
	provider := newProvider(store, clock)

	provider.SessionID(ctx)

	written, err := store.Get(ctx, KeyLastSeen)
	require.NoError(t, err)

	clock.Advance(300 * time.Millisecond)
	provider.RefreshActivity(ctx)

	unchanged, err := store.Get(ctx, KeyLastSeen)
	require.NoError(t, err)
	assert.Equal(t, written, unchanged)

	clock.Advance(time.Second)
	provider.RefreshActivity(ctx)

	updated, err := store.Get(ctx, KeyLastSeen)
	require.NoError(t, err)
	assert.NotEqual(t, written, updated)
}

func TestProvider_ActivityKeepsSessionAlive(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	provider := newProvider(storage.NewMemory(), clock)

	session := provider.SessionID(ctx)

	for range 4 {
		clock.Advance(20 * time.Minute)
		provider.RefreshActivity(ctx)
	}

	assert.Equal(t, session, provider.SessionID(ctx))
}

func TestProvider_StorageFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	provider := newProvider(storage.Failing{}, clock)

	visitor := provider.VisitorID(ctx)
	session := provider.SessionID(ctx)

	assert.NotEmpty(t, visitor)
	assert.Equal(t, visitor, provider.VisitorID(ctx))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, session, provider.SessionID(ctx))

	clock.Advance(31 * time.Minute)
	assert.NotEqual(t, session, provider.SessionID(ctx))

	assert.False(t, provider.IsReturning(ctx))
}

func TestProvider_IsReturning(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clock := clockwork.NewFakeClock()

	first := newProvider(store, clock)
	assert.False(t, first.IsReturning(ctx))
	assert.False(t, first.IsReturning(ctx), "derived once per page view")

	assert.True(t, newProvider(store, clock).IsReturning(ctx))
}

func TestClassifyDevice(t *testing.T) {
	testCases := []struct {
		name     string
		ua       string
		expected models.DeviceInfo
	}{
		{
			name:     "desktop safari",
			ua:       desktopUA,
			expected: models.DeviceInfo{Browser: "Safari", Device: models.DeviceDesktop, OS: "macOS"},
		},
		{
			name:     "iphone",
			ua:       "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
			expected: models.DeviceInfo{Browser: "Safari", Device: models.DeviceMobile, OS: "iOS"},
		},
		{
			name:     "ipad",
			ua:       "Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/124.0 Mobile/15E148 Safari/604.1",
			expected: models.DeviceInfo{Browser: "Chrome", Device: models.DeviceTablet, OS: "iOS"},
		},
		{
			name:     "android phone",
			ua:       "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Mobile Safari/537.36",
			expected: models.DeviceInfo{Browser: "Chrome", Device: models.DeviceMobile, OS: "Android"},
		},
		{
			name:     "android tablet",
			ua:       "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			expected: models.DeviceInfo{Browser: "Chrome", Device: models.DeviceTablet, OS: "Android"},
		},
		{
			name:     "windows edge",
			ua:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 Edg/124.0",
			expected: models.DeviceInfo{Browser: "Edge", Device: models.DeviceDesktop, OS: "Windows"},
		},
		{
			name:     "linux firefox",
			ua:       "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
			expected: models.DeviceInfo{Browser: "Firefox", Device: models.DeviceDesktop, OS: "Linux"},
		},
		{
			name:     "empty",
			ua:       "",
			expected: models.DeviceInfo{Browser: "Unknown", Device: models.DeviceDesktop, OS: "Unknown"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyDevice(tc.ua))
		})
	}
}

func TestProvider_DeviceIsMemoized(t *testing.T) {
	provider := newProvider(storage.NewMemory(), clockwork.NewFakeClock())

	assert.Equal(t, provider.Device(), provider.Device())
	assert.Equal(t, models.DeviceDesktop, provider.Device().Device)
}
