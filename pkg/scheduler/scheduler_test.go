package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if due == nil || t.at.Before(due.at) {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.fired = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.f()
	}
}

type recordingFirer struct {
	mu    sync.Mutex
	fires []Job
	times []time.Time
	clock Clock
}

func (f *recordingFirer) Fire(_ context.Context, job Job) FireOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fires = append(f.fires, job)
	f.times = append(f.times, f.clock.Now())
	return FireDone
}

func (f *recordingFirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fires)
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) SaveJob(context.Context, Job) error { return errors.New("disk full") }

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, store Store) (*Scheduler, *fakeClock, *recordingFirer) {
	t.Helper()
	clock := newFakeClock(epoch)
	firer := &recordingFirer{clock: clock}
	s := New(store, firer, WithClock(clock))
	t.Cleanup(s.Close)
	return s, clock, firer
}

func TestScheduleRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, nil)
	start := epoch.Add(time.Hour)

	first, err := s.Schedule(ctx, 1, Daily(), start)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Submit daily, starting from 2026-03-01 10:00", first.Name)

	_, err = s.Schedule(ctx, 1, Daily(), start)
	require.ErrorIs(t, err, ErrDuplicateJob)

	other, err := s.Schedule(ctx, 2, Daily(), start)
	require.NoError(t, err, "names are scoped per user")
	assert.NotEqual(t, first.ID, other.ID)

	_, err = s.Schedule(ctx, 1, Weekly(), start)
	require.NoError(t, err)
	assert.Len(t, s.ListRemovable(1), 2)
}

func TestScheduleRejectsInvalidCadence(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)
	_, err := s.Schedule(context.Background(), 1, Custom(0, 0, 1), epoch)
	require.ErrorIs(t, err, ErrInvalidCadence)
	assert.Empty(t, s.ListRemovable(1))
}

func TestScheduleStoreFailure(t *testing.T) {
	s, _, _ := newTestScheduler(t, failingStore{NewMemoryStore()})
	_, err := s.Schedule(context.Background(), 1, Daily(), epoch)
	require.Error(t, err)
	assert.Empty(t, s.ListRemovable(1))
}

func TestJobFiresAtStartThenEveryPeriod(t *testing.T) {
	s, clock, firer := newTestScheduler(t, nil)
	start := epoch.Add(30 * time.Minute)
	job, err := s.Schedule(context.Background(), 7, Hourly(), start)
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	assert.Zero(t, firer.count())

	clock.Advance(time.Minute)
	require.Equal(t, 1, firer.count())
	assert.Equal(t, start, firer.times[0])
	assert.Equal(t, job.ID, firer.fires[0].ID)

	clock.Advance(3 * time.Hour)
	require.Equal(t, 4, firer.count())
	assert.Equal(t, start.Add(3*time.Hour), firer.times[3])

	_, next, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, start.Add(4*time.Hour), next)
}

func TestCancelStopsFires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s, clock, firer := newTestScheduler(t, store)
	job, err := s.Schedule(ctx, 1, Hourly(), epoch.Add(time.Hour))
	require.NoError(t, err)

	require.ErrorIs(t, s.Cancel(ctx, 2, job.ID), ErrJobNotFound, "other users cannot cancel")
	require.NoError(t, s.Cancel(ctx, 1, job.ID))
	require.ErrorIs(t, s.Cancel(ctx, 1, job.ID), ErrJobNotFound)

	clock.Advance(5 * time.Hour)
	assert.Zero(t, firer.count())
	stored, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCancelAll(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, nil)
	for _, c := range []Cadence{Hourly(), Daily(), Weekly()} {
		_, err := s.Schedule(ctx, 1, c, epoch.Add(time.Hour))
		require.NoError(t, err)
	}
	_, err := s.Schedule(ctx, 2, Daily(), epoch.Add(time.Hour))
	require.NoError(t, err)

	n, err := s.CancelAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, s.ListRemovable(1))
	assert.Len(t, s.ListRemovable(2), 1)
}

func TestListRemovableKeepsRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, nil)
	var want []string
	for _, c := range []Cadence{Weekly(), Hourly(), Custom(0, 0, 30)} {
		job, err := s.Schedule(ctx, 1, c, epoch.Add(time.Hour))
		require.NoError(t, err)
		want = append(want, job.ID)
	}

	var got []string
	for _, j := range s.ListRemovable(1) {
		got = append(got, j.ID)
	}
	assert.Equal(t, want, got)
}

func TestRestoreRearmsStoredJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	past := Job{ID: "a", Name: "past", UserID: 1, Cadence: Hourly(), Start: epoch.Add(-90 * time.Minute), Created: epoch}
	future := Job{ID: "b", Name: "future", UserID: 1, Cadence: Daily(), Start: epoch.Add(2 * time.Hour), Created: epoch.Add(time.Second)}
	broken := Job{ID: "c", Name: "broken", UserID: 1, Cadence: Custom(0, 0, 1), Start: epoch, Created: epoch.Add(2 * time.Second)}
	for _, j := range []Job{past, future, broken} {
		require.NoError(t, store.SaveJob(ctx, j))
	}

	s, clock, firer := newTestScheduler(t, store)
	n, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, next, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(30*time.Minute), next, "missed fires are not replayed")

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 3, firer.count())

	n, err = s.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already armed jobs are skipped")
}

func TestCloseWaitsForRunningFire(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	firer := FirerFunc(func(ctx context.Context, _ Job) FireOutcome {
		close(started)
		<-ctx.Done()
		close(finished)
		return FireFatal
	})
	s := New(nil, firer)
	_, err := s.Schedule(context.Background(), 1, Custom(0, 0, 5), time.Now().Add(10*time.Millisecond))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not fire")
	}
	s.Close()

	select {
	case <-finished:
	default:
		t.Fatal("Close returned before the fire finished")
	}

	_, err = s.Schedule(context.Background(), 1, Daily(), time.Now())
	assert.ErrorIs(t, err, ErrClosed)
}
