package scheduler

import (
	"context"
	"errors"
	"fmt"

	"formpilot/pkg/logx"
	"formpilot/pkg/session"
	"formpilot/pkg/traversal"
)

// FireOutcome summarizes one fire for logs and metrics.
type FireOutcome string

const (
	FireDone      FireOutcome = "done"
	FireFatal     FireOutcome = "fatal"
	FireBusy      FireOutcome = "busy"
	FireNoSession FireOutcome = "no_session"
)

// FailureNotice is queued for the user when an unattended run fails.
const FailureNotice = "🚨 Scheduled job %q encountered an error. Please try again later."

// maxFireSteps bounds the advance loop of a single fire.
const maxFireSteps = 16

// Sessions is the part of the session manager the bridge needs.
type Sessions interface {
	Lookup(ctx context.Context, userID int64) (*session.Session, error)
	Persist(ctx context.Context, s *session.Session) error
}

// Advancer drives a traversal step.
type Advancer interface {
	Advance(ctx context.Context, s *session.Session, mode traversal.Mode, useCache bool) (traversal.Result, error)
}

// FireObserver records fire outcomes.
type FireObserver interface {
	ObserveFire(outcome string)
}

// Bridge runs a fired job as an unattended traversal of its owner's session.
type Bridge struct {
	sessions Sessions
	engine   Advancer
	observer FireObserver
	logger   *logx.Logger
}

// NewBridge wires the bridge. observer may be nil.
func NewBridge(sessions Sessions, engine Advancer, observer FireObserver) *Bridge {
	return &Bridge{
		sessions: sessions,
		engine:   engine,
		observer: observer,
		logger:   logx.NewLogger("bridge"),
	}
}

// Fire submits the job owner's form without user interaction. It is a no-op when the session
// already has a form open or a step in flight.
func (b *Bridge) Fire(ctx context.Context, job Job) FireOutcome {
	outcome := b.fire(ctx, job)
	if b.observer != nil {
		b.observer.ObserveFire(string(outcome))
	}
	return outcome
}

func (b *Bridge) fire(ctx context.Context, job Job) FireOutcome {
	s, err := b.sessions.Lookup(ctx, job.UserID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			b.logger.Error("user %d: failed to load session for %q: %v", job.UserID, job.Name, err)
		}
		return FireNoSession
	}

	if s.HasActiveDriver() || s.Busy() {
		b.logger.Info("user %d: %q skipped, a submission is already in progress", job.UserID, job.Name)
		return FireBusy
	}

	outcome := b.run(ctx, s, job)
	if err := b.sessions.Persist(ctx, s); err != nil {
		b.logger.Warn("user %d: %v", job.UserID, err)
	}
	return outcome
}

func (b *Bridge) run(ctx context.Context, s *session.Session, job Job) FireOutcome {
	for step := 0; step < maxFireSteps; step++ {
		res, err := b.engine.Advance(ctx, s, traversal.Unattended, true)
		switch res.Outcome {
		case traversal.OutcomeDone:
			b.logger.Info("user %d: %q submitted the form (%d answers reused)", job.UserID, job.Name, res.AutoFilled)
			return FireDone
		case traversal.OutcomeBusy:
			return FireBusy
		case traversal.OutcomeFatal:
			return b.failed(s, job, err)
		case traversal.OutcomeIgnored:
			return b.failed(s, job, res.Invalid)
		case traversal.OutcomeStopped:
			b.logger.Info("user %d: %q stopped by the user", job.UserID, job.Name)
			return FireBusy
		}
		if err != nil {
			return b.failed(s, job, err)
		}
	}
	return b.failed(s, job, fmt.Errorf("no progress after %d steps", maxFireSteps))
}

func (b *Bridge) failed(s *session.Session, job Job, err error) FireOutcome {
	b.logger.Error("user %d: %q failed: %v", job.UserID, job.Name, err)
	if rerr := s.Release(); rerr != nil {
		b.logger.Warn("user %d: %v", job.UserID, rerr)
	}
	s.ClearMarkup()
	s.AddNotice(fmt.Sprintf(FailureNotice, job.Name))
	return FireFatal
}
