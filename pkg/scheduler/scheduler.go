package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"formpilot/pkg/logx"
)

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so tests can drive fires deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Firer runs a job when its trigger fires.
type Firer interface {
	Fire(ctx context.Context, job Job) FireOutcome
}

// FirerFunc adapts a function to Firer.
type FirerFunc func(ctx context.Context, job Job) FireOutcome

func (f FirerFunc) Fire(ctx context.Context, job Job) FireOutcome { return f(ctx, job) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

type entry struct {
	job   Job
	next  time.Time
	timer Timer
}

// Scheduler owns the timers of every registered job. Fires run on timer goroutines; a job that is
// cancelled after it fired still runs to completion.
type Scheduler struct {
	mu     sync.Mutex
	store  Store
	firer  Firer
	clock  Clock
	jobs   map[string]*entry
	order  []string
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logx.Logger
}

// New creates a scheduler. A nil store keeps jobs in memory only.
func New(store Store, firer Firer, opts ...Option) *Scheduler {
	if store == nil {
		store = NewMemoryStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:  store,
		firer:  firer,
		clock:  realClock{},
		jobs:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
		logger: logx.NewLogger("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers a recurring job for userID, first firing at start.
func (s *Scheduler) Schedule(ctx context.Context, userID int64, c Cadence, start time.Time) (Job, error) {
	if err := c.Validate(); err != nil {
		return Job{}, err
	}
	start = start.UTC()
	job := Job{
		ID:      uuid.NewString(),
		Name:    JobName(c, start),
		UserID:  userID,
		Cadence: c,
		Start:   start,
		Created: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Job{}, ErrClosed
	}
	for _, id := range s.order {
		if e := s.jobs[id]; e.job.UserID == userID && e.job.Name == job.Name {
			return Job{}, fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
		}
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("failed to save job: %w", err)
	}
	s.addLocked(job)
	s.logger.Info("user %d: scheduled %q (%s)", userID, job.Name, job.ID)
	return job, nil
}

// Cancel removes a job of userID. Fires already running are not interrupted.
func (s *Scheduler) Cancel(ctx context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || e.job.UserID != userID {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s.removeLocked(id)
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	s.logger.Info("user %d: cancelled %q", userID, e.job.Name)
	return nil
}

// CancelAll removes every job of userID and returns how many were removed.
func (s *Scheduler) CancelAll(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, id := range s.order {
		if s.jobs[id].job.UserID == userID {
			ids = append(ids, id)
		}
	}
	var errs []error
	for _, id := range ids {
		s.removeLocked(id)
		if err := s.store.DeleteJob(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(ids), errors.Join(errs...)
}

// ListRemovable returns the jobs of userID in registration order.
func (s *Scheduler) ListRemovable(userID int64) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, id := range s.order {
		if e := s.jobs[id]; e.job.UserID == userID {
			jobs = append(jobs, e.job)
		}
	}
	return jobs
}

// Get returns a registered job and its next fire time.
func (s *Scheduler) Get(id string) (Job, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return Job{}, time.Time{}, false
	}
	return e.job, e.next, true
}

// Restore re-arms the jobs found in the store. Fires missed while the process was down are not
// replayed.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, job := range jobs {
		if _, ok := s.jobs[job.ID]; ok {
			continue
		}
		if err := job.Cadence.Validate(); err != nil {
			s.logger.Warn("dropping stored job %s: %v", job.ID, err)
			continue
		}
		s.addLocked(job)
		n++
	}
	s.logger.Info("restored %d scheduled jobs", n)
	return n, nil
}

// Close stops every timer and waits for running fires to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, e := range s.jobs {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) addLocked(job Job) {
	now := s.clock.Now()
	next := job.Start
	if next.Before(now) {
		next = job.Cadence.Next(job.Start, now)
	}
	e := &entry{job: job}
	s.jobs[job.ID] = e
	s.order = append(s.order, job.ID)
	s.armLocked(e, next)
}

func (s *Scheduler) armLocked(e *entry, at time.Time) {
	id := e.job.ID
	e.next = at
	e.timer = s.clock.AfterFunc(at.Sub(s.clock.Now()), func() {
		s.onTimer(id, at)
	})
	logx.Debug(s.ctx, "scheduler", "job %s armed for %s", id, at.Format(time.RFC3339))
}

func (s *Scheduler) removeLocked(id string) {
	if e, ok := s.jobs[id]; ok && e.timer != nil {
		e.timer.Stop()
	}
	delete(s.jobs, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Scheduler) onTimer(id string, at time.Time) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if s.closed || !ok || !e.next.Equal(at) {
		s.mu.Unlock()
		return
	}
	job := e.job
	s.armLocked(e, job.Cadence.Next(job.Start, at))
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.logger.Info("user %d: firing %q", job.UserID, job.Name)
	outcome := s.firer.Fire(s.ctx, job)
	s.logger.Info("user %d: %q finished: %s", job.UserID, job.Name, outcome)
}
