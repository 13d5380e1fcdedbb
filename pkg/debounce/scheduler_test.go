package debounce_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/skyscope/internal/testutils"
	"github.com/aretw0/skyscope/pkg/debounce"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

// recorder is an action that reports each start and blocks until released.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	active  int32
	overlap atomic.Bool
	started chan string
	release chan error
}

func newRecorder() *recorder {
	return &recorder{
		started: make(chan string, 16),
		release: make(chan error),
	}
}

func (r *recorder) action(ctx context.Context, payload string) error {
	if atomic.AddInt32(&r.active, 1) > 1 {
		r.overlap.Store(true)
	}
	defer atomic.AddInt32(&r.active, -1)

	r.mu.Lock()
	r.calls = append(r.calls, payload)
	r.mu.Unlock()

	r.started <- payload
	return <-r.release
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestSchedule_CoalescesWithinDelay(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(100*time.Millisecond, "a", "id", rec.action)
	clock.Advance(10 * time.Millisecond)
	s.Schedule(100*time.Millisecond, "b", "id", rec.action)

	assert.Equal(t, 1, clock.Pending(), "the first timer must be cancelled")

	clock.Advance(99 * time.Millisecond)
	testutils.Silent(t, rec.started, 50*time.Millisecond)
	assert.True(t, s.Pending("id"))

	clock.Advance(1 * time.Millisecond)
	assert.Equal(t, "b", testutils.Receive(t, rec.started, wait))
	assert.Equal(t, 110*time.Millisecond, clock.Now())
	assert.False(t, s.Pending("id"))

	rec.release <- nil
	s.Wait()
	assert.Equal(t, []string{"b"}, rec.Calls())
}

func TestSchedule_TrailingPayloadRunsAfterCompletion(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(0, "x", "id", rec.action)
	clock.Advance(0)
	assert.Equal(t, "x", testutils.Receive(t, rec.started, wait))
	assert.True(t, s.InProgress("id"))

	clock.Advance(50 * time.Millisecond)
	s.Schedule(0, "y", "id", rec.action)
	clock.Advance(0)

	// y is queued, not started.
	testutils.Silent(t, rec.started, 50*time.Millisecond)

	// Completing x starts y with no further clock movement.
	rec.release <- nil
	assert.Equal(t, "y", testutils.Receive(t, rec.started, wait))
	rec.release <- nil

	s.Wait()
	assert.Equal(t, []string{"x", "y"}, rec.Calls())
	assert.False(t, s.InProgress("id"))
	assert.False(t, rec.overlap.Load(), "invocations overlapped")
}

func TestSchedule_QueuedPayloadIsLastWriteWins(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(0, "first", "id", rec.action)
	clock.Advance(0)
	testutils.Receive(t, rec.started, wait)

	for _, p := range []string{"q1", "q2", "q3"} {
		s.Schedule(10*time.Millisecond, p, "id", rec.action)
		clock.Advance(10 * time.Millisecond)
	}

	rec.release <- nil
	assert.Equal(t, "q3", testutils.Receive(t, rec.started, wait))
	rec.release <- nil

	s.Wait()
	assert.Equal(t, []string{"first", "q3"}, rec.Calls())
}

func TestSchedule_QueuedPayloadRunsItsOwnAction(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	first, second := newRecorder(), newRecorder()

	s.Schedule(0, "a", "id", first.action)
	clock.Advance(0)
	testutils.Receive(t, first.started, wait)

	s.Schedule(0, "b", "id", second.action)
	clock.Advance(0)

	first.release <- nil
	assert.Equal(t, "b", testutils.Receive(t, second.started, wait))
	second.release <- nil

	s.Wait()
	assert.Equal(t, []string{"a"}, first.Calls())
	assert.Equal(t, []string{"b"}, second.Calls())
}

func TestSchedule_NoFollowUpWithoutNewRequests(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(5*time.Millisecond, "only", "id", rec.action)
	clock.Advance(5 * time.Millisecond)
	testutils.Receive(t, rec.started, wait)
	rec.release <- nil
	s.Wait()

	testutils.Silent(t, rec.started, 50*time.Millisecond)
	assert.Equal(t, []string{"only"}, rec.Calls())
}

func TestSchedule_FailureStillDrainsQueue(t *testing.T) {
	clock := testutils.NewManualClock()
	var failures []string
	var mu sync.Mutex
	s := debounce.New[string, string](
		debounce.WithClock(clock),
		debounce.WithErrorHandler(func(action string, err error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, action+": "+err.Error())
		}),
	)
	rec := newRecorder()

	s.Schedule(0, "bad", "id", rec.action)
	clock.Advance(0)
	testutils.Receive(t, rec.started, wait)

	s.Schedule(0, "good", "id", rec.action)
	clock.Advance(0)

	rec.release <- errors.New("backend down")
	assert.Equal(t, "good", testutils.Receive(t, rec.started, wait))
	rec.release <- nil
	s.Wait()

	assert.False(t, s.InProgress("id"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"id: backend down"}, failures)
}

func TestSchedule_EmptyPayloadIsStillQueued(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(0, "abc", "search", rec.action)
	clock.Advance(0)
	testutils.Receive(t, rec.started, wait)

	s.Schedule(0, "", "search", rec.action)
	clock.Advance(0)

	rec.release <- nil
	assert.Equal(t, "", testutils.Receive(t, rec.started, wait))
	rec.release <- nil
	s.Wait()

	assert.Equal(t, []string{"abc", ""}, rec.Calls())
}

func TestSchedule_RepeatedSamePayloadCoalesces(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	for i := 0; i < 5; i++ {
		s.Schedule(100*time.Millisecond, "same", "render", rec.action)
		clock.Advance(20 * time.Millisecond)
	}
	clock.Advance(100 * time.Millisecond)

	testutils.Receive(t, rec.started, wait)
	rec.release <- nil
	s.Wait()
	testutils.Silent(t, rec.started, 50*time.Millisecond)
	assert.Equal(t, []string{"same"}, rec.Calls())
}

func TestSchedule_IndependentIdentities(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	recA := newRecorder()
	recB := newRecorder()

	s.Schedule(10*time.Millisecond, "a", "A", recA.action)
	s.Schedule(15*time.Millisecond, "b", "B", recB.action)
	clock.Advance(20 * time.Millisecond)

	assert.Equal(t, "a", testutils.Receive(t, recA.started, wait))
	assert.Equal(t, "b", testutils.Receive(t, recB.started, wait))
	assert.True(t, s.InProgress("A"))
	assert.True(t, s.InProgress("B"))

	recB.release <- nil
	recA.release <- nil
	s.Wait()
}

func TestSchedule_StaleTimerCallbackIgnored(t *testing.T) {
	// A clock whose timers cannot be stopped models the race where a timer
	// has already fired when Schedule tries to cancel it.
	clock := &unstoppableClock{ManualClock: testutils.NewManualClock()}
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(10*time.Millisecond, "old", "id", rec.action)
	s.Schedule(10*time.Millisecond, "new", "id", rec.action)
	clock.Advance(10 * time.Millisecond)

	assert.Equal(t, "new", testutils.Receive(t, rec.started, wait))
	rec.release <- nil
	s.Wait()
	testutils.Silent(t, rec.started, 50*time.Millisecond)
	assert.Equal(t, []string{"new"}, rec.Calls())
}

type unstoppableClock struct {
	*testutils.ManualClock
}

func (c *unstoppableClock) AfterFunc(d time.Duration, f func()) debounce.Timer {
	c.ManualClock.AfterFunc(d, f)
	return noStop{}
}

type noStop struct{}

func (noStop) Stop() bool { return false }

func TestSchedule_ReentrantScheduleFromAction(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, int](debounce.WithClock(clock))
	done := make(chan int, 4)

	var act debounce.Action[int]
	act = func(ctx context.Context, n int) error {
		if n < 3 {
			s.Schedule(0, n+1, "loop", act)
		}
		done <- n
		return nil
	}

	s.Schedule(0, 1, "loop", act)
	clock.Advance(0)
	assert.Equal(t, 1, testutils.Receive(t, done, wait))

	clock.Advance(0)
	assert.Equal(t, 2, testutils.Receive(t, done, wait))

	clock.Advance(0)
	assert.Equal(t, 3, testutils.Receive(t, done, wait))
	s.Wait()
}

func TestSchedule_PanicClearsInProgress(t *testing.T) {
	clock := testutils.NewManualClock()
	errs := make(chan error, 1)
	s := debounce.New[string, string](
		debounce.WithClock(clock),
		debounce.WithErrorHandler(func(_ string, err error) { errs <- err }),
	)

	s.Schedule(0, "boom", "id", func(ctx context.Context, p string) error {
		panic(p)
	})
	clock.Advance(0)

	err := testutils.Receive(t, errs, wait)
	assert.ErrorContains(t, err, "boom")
	s.Wait()
	assert.False(t, s.InProgress("id"))
}

func TestSchedule_ActionTimeoutSetsDeadline(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](
		debounce.WithClock(clock),
		debounce.WithActionTimeout(20*time.Millisecond),
	)
	result := make(chan error, 1)

	s.Schedule(0, "slow", "id", func(ctx context.Context, _ string) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})
	clock.Advance(0)

	assert.ErrorIs(t, testutils.Receive(t, result, wait), context.DeadlineExceeded)
	s.Wait()
	assert.False(t, s.InProgress("id"))
}

func TestStop_CancelsPendingAndRejectsNew(t *testing.T) {
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock))
	rec := newRecorder()

	s.Schedule(10*time.Millisecond, "never", "id", rec.action)
	s.Stop()
	s.Schedule(10*time.Millisecond, "ignored", "id", rec.action)
	clock.Advance(time.Second)

	testutils.Silent(t, rec.started, 50*time.Millisecond)
	assert.False(t, s.Pending("id"))
	assert.Empty(t, rec.Calls())
}

func TestSchedule_SystemClock(t *testing.T) {
	s := debounce.New[string, string]()
	got := make(chan string, 4)

	s.Schedule(30*time.Millisecond, "a", "id", func(ctx context.Context, p string) error {
		got <- p
		return nil
	})
	s.Schedule(30*time.Millisecond, "b", "id", func(ctx context.Context, p string) error {
		got <- p
		return nil
	})

	assert.Equal(t, "b", testutils.Receive(t, got, wait))
	s.Wait()
	testutils.Silent(t, got, 60*time.Millisecond)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := debounce.NewMetrics(reg)
	clock := testutils.NewManualClock()
	s := debounce.New[string, string](debounce.WithClock(clock), debounce.WithMetrics(m))
	rec := newRecorder()

	s.Schedule(10*time.Millisecond, "a", "render", rec.action)
	s.Schedule(10*time.Millisecond, "b", "render", rec.action)
	clock.Advance(10 * time.Millisecond)
	testutils.Receive(t, rec.started, wait)

	s.Schedule(0, "c", "render", rec.action)
	clock.Advance(0)
	s.Schedule(0, "d", "render", rec.action)
	clock.Advance(0)

	rec.release <- nil
	testutils.Receive(t, rec.started, wait)
	rec.release <- errors.New("nope")
	s.Wait()

	count, err := testutil.GatherAndCount(reg, "skyscope_debounce_superseded_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, []string{"b", "d"}, rec.Calls())
}
