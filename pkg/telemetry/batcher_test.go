package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/metrics"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches []models.Batch[string]
	fail    bool
}

func (s *recordingSink) Send(_ context.Context, batch models.Batch[string]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, batch)

	if s.fail {
		return errors.New("backend down")
	}

	return nil
}

func (s *recordingSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = fail
}

func (s *recordingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.batches)
}

func (s *recordingSink) batch(i int) models.Batch[string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.batches[i]
}

func newTestBatcher(config Config, sink Sink[string]) (*Batcher[string], *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()

	return NewBatcher(config, sink, scheduler.NewTimers(clock), nil, log.Discard()), clock
}

func TestBatcher_FlushBoundary(t *testing.T) {
	sink := &recordingSink{}
	batcher, clock := newTestBatcher(WorkflowConfig("site-1"), sink)

	batcher.Add("a")
	clock.Advance(1999 * time.Millisecond)
	batcher.Add("b")
	batcher.Add("c")

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, sink.calls())
	assert.Equal(t, 3, batcher.Len())

	clock.Advance(time.Millisecond)

	assert.Eventually(t, func() bool { return sink.calls() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, models.Batch[string]{SiteID: "site-1", Events: []string{"a", "b", "c"}}, sink.batch(0))
	assert.Equal(t, 0, batcher.Len())

	clock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, sink.calls(), "an empty queue schedules nothing")
}

func TestBatcher_PageChannelRequeuesOnFailure(t *testing.T) {
	sink := &recordingSink{fail: true}
	batcher, clock := newTestBatcher(PageConfig("site-1"), sink)

	batcher.Add("a")
	batcher.Add("b")
	clock.Advance(PageFlushDelay)

	assert.Eventually(t, func() bool { return sink.calls() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return batcher.Len() == 2 }, time.Second, time.Millisecond)

	sink.setFail(false)
	batcher.Add("c")
	clock.Advance(PageFlushDelay)

	assert.Eventually(t, func() bool { return sink.calls() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sink.batch(1).Events)
	assert.Equal(t, 0, batcher.Len())
}

func TestBatcher_WorkflowChannelDropsOnFailure(t *testing.T) {
	sink := &recordingSink{fail: true}
	batcher, _ := newTestBatcher(WorkflowConfig("site-1"), sink)

	batcher.Add("a")

	require.Error(t, batcher.Flush(context.Background()))
	assert.Equal(t, 0, batcher.Len())
}

func TestBatcher_CloseFlushesOnceAndStops(t *testing.T) {
	sink := &recordingSink{}
	clock := clockwork.NewFakeClock()
	timers := scheduler.NewTimers(clock)
	batcher := NewBatcher[string](WorkflowConfig("site-1"), sink, timers, nil, log.Discard())

	batcher.Add("a")
	batcher.Add("b")
	assert.Equal(t, 1, timers.Pending())

	require.NoError(t, batcher.Close(context.Background()))
	require.NoError(t, batcher.Close(context.Background()))

	assert.Equal(t, 1, sink.calls())
	assert.Equal(t, []string{"a", "b"}, sink.batch(0).Events)
	assert.Equal(t, 0, timers.Pending())

	batcher.Add("late")
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, sink.calls())
	assert.Equal(t, 0, batcher.Len())
}

func TestBatcher_RecordsDeliveries(t *testing.T) {
	recorder, err := metrics.NewPrometheus(prometheus.NewRegistry())
	require.NoError(t, err)

	sink := &recordingSink{}
	batcher := NewBatcher[string](PageConfig("site-1"), sink, scheduler.NewTimers(clockwork.NewFakeClock()), recorder, log.Discard())

	batcher.Add("a")
	batcher.Add("b")
	require.NoError(t, batcher.Flush(context.Background()))

	sink.setFail(true)
	batcher.Add("c")
	require.Error(t, batcher.Flush(context.Background()))

	assert.InDelta(t, 2, testutil.ToFloat64(recorder.Delivered.WithLabelValues("page")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(recorder.Failed.WithLabelValues("page")), 0)
}

func TestMulti(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{fail: true}

	err := Multi[string]{ok, failing}.Send(context.Background(), models.Batch[string]{SiteID: "s"})

	require.Error(t, err)
	assert.Equal(t, 1, ok.calls())
	assert.Equal(t, 1, failing.calls())
}
