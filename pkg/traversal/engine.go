// Package traversal walks a form one question at a time, consulting the user's saved preferences
// and driving the form either interactively or unattended.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"formpilot/pkg/eventlog"
	"formpilot/pkg/form"
	"formpilot/pkg/logx"
	"formpilot/pkg/prefs"
	"formpilot/pkg/proto"
	"formpilot/pkg/session"
)

// DefaultMaxQuestions bounds a single run so a driver that never completes cannot loop forever.
const DefaultMaxQuestions = 500

// Engine runs traversal steps. It holds no per-session state and is safe for concurrent use
// across sessions.
type Engine struct {
	opener       form.Opener
	observer     Observer
	audit        AuditLog
	logger       *logx.Logger
	maxQuestions int
}

// AuditLog receives one record per submitted or failed run.
type AuditLog interface {
	Write(s eventlog.Submission) error
}

// NewEngine creates an engine that opens drivers with opener. observer may be nil.
func NewEngine(opener form.Opener, observer Observer) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{
		opener:       opener,
		observer:     observer,
		logger:       logx.NewLogger("traversal"),
		maxQuestions: DefaultMaxQuestions,
	}
}

// SetMaxQuestions overrides DefaultMaxQuestions.
func (e *Engine) SetMaxQuestions(n int) {
	if n > 0 {
		e.maxQuestions = n
	}
}

// SetAuditLog records every finished run in a.
func (e *Engine) SetAuditLog(a AuditLog) {
	e.audit = a
}

// Advance moves the traversal forward until the user has to act or the form is done.
// With an active driver and a pending question it re-renders that question.
func (e *Engine) Advance(ctx context.Context, s *session.Session, mode Mode, useCache bool) (Result, error) {
	return e.guard(ctx, s, mode, InputAdvance, func() (Result, error) {
		return e.resume(ctx, s, mode, useCache)
	})
}

// Propose records the user's answer for the current question (or the next grid row) and asks for
// confirmation.
func (e *Engine) Propose(ctx context.Context, s *session.Session, a form.Answer) (Result, error) {
	return e.guard(ctx, s, Interactive, InputAnswer, func() (Result, error) {
		return e.propose(ctx, s, a)
	})
}

// ProvideOther fills in the free text behind an "Other" choice.
func (e *Engine) ProvideOther(ctx context.Context, s *session.Session, text string) (Result, error) {
	return e.guard(ctx, s, Interactive, InputOther, func() (Result, error) {
		return e.provideOther(ctx, s, text)
	})
}

// SubmitAnswer confirms or rejects the pending answer. A non-empty a is proposed first, so
// SubmitAnswer(ctx, s, a, true) answers and confirms in one call.
func (e *Engine) SubmitAnswer(ctx context.Context, s *session.Session, a form.Answer, confirmed bool) (Result, error) {
	input := InputReject
	if confirmed {
		input = InputConfirm
	}
	if !a.IsEmpty() {
		input = InputAnswer
	}
	return e.guard(ctx, s, Interactive, input, func() (Result, error) {
		if !a.IsEmpty() {
			res, err := e.propose(ctx, s, a)
			if err != nil || res.Outcome != OutcomeNeedsConfirmation {
				return res, err
			}
		}
		if confirmed {
			return e.confirm(ctx, s)
		}
		return e.reject(ctx, s)
	})
}

// RecordSaveDecision remembers (yes) or discards the submitted answer, then moves on.
func (e *Engine) RecordSaveDecision(ctx context.Context, s *session.Session, yes bool) (Result, error) {
	return e.guard(ctx, s, Interactive, InputSaveDecision, func() (Result, error) {
		return e.recordSave(ctx, s, yes)
	})
}

// Stop releases the driver and clears the traversal immediately, even while a step is running.
func (e *Engine) Stop(ctx context.Context, s *session.Session) error {
	err := s.Release()
	s.SetState(StateIdle, "stopped")
	logx.DebugState(ctx, "traversal", "stop", string(StateIdle))
	if err != nil {
		e.logger.Warn("user %d: %v", s.UserID, err)
	}
	return err
}

// guard enforces one in-flight step per session and the accepted-input table.
func (e *Engine) guard(ctx context.Context, s *session.Session, mode Mode, input Input, fn func() (Result, error)) (Result, error) {
	if mode == Unattended && s.HasActiveDriver() {
		e.logger.Info("user %d: unattended run skipped, form already open", s.UserID)
		return Result{Outcome: OutcomeBusy}, nil
	}
	if !s.TryBegin() {
		e.logger.Info("user %d: %s ignored, another step is in flight", s.UserID, input)
		return Result{Outcome: OutcomeBusy}, nil
	}
	defer s.End()

	state := s.State()
	if !Accepts(state, input) {
		logx.Debug(ctx, "traversal", "user %d: %s not accepted in %s", s.UserID, input, state)
		return Result{Outcome: OutcomeIgnored, Invalid: fmt.Errorf("%w: %s in %s", ErrUnexpectedInput, input, state)}, nil
	}

	start := time.Now()
	res, err := fn()
	if err != nil {
		res = e.fail(ctx, s, mode, err)
	}
	e.observer.ObserveStep(mode.String(), res.Outcome.String(), time.Since(start))
	e.record(s, mode, res)
	return res, err
}

func (e *Engine) record(s *session.Session, mode Mode, res Result) {
	if e.audit == nil {
		return
	}
	sub := eventlog.Submission{UserID: s.UserID, Mode: mode.String(), Link: s.Link()}
	switch res.Outcome {
	case OutcomeDone:
		sub.Outcome = eventlog.OutcomeSubmitted
		sub.AutoFilled = res.AutoFilled
	case OutcomeFatal:
		sub.Outcome = eventlog.OutcomeFailed
		sub.Kind = FatalKind(res.Err)
		if res.Err != nil {
			sub.Error = res.Err.Error()
		}
	default:
		return
	}
	if err := e.audit.Write(sub); err != nil {
		e.logger.Warn("user %d: failed to record run: %v", s.UserID, err)
	}
}

func (e *Engine) transition(ctx context.Context, s *session.Session, to proto.State, reason string) error {
	from := s.State()
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	s.SetState(to, reason)
	if from != to {
		logx.Debug(ctx, "traversal", "user %d: 🔄 %s → %s (%s)", s.UserID, from, to, reason)
	}
	return nil
}

// fail ends the traversal: the driver is released and the session left idle-linked.
func (e *Engine) fail(ctx context.Context, s *session.Session, mode Mode, err error) Result {
	kind := FatalKind(err)
	e.logger.Error("user %d: %s traversal failed (%s): %v", s.UserID, mode, kind, err)
	e.observer.ObserveFatal(mode.String(), kind)

	if rerr := s.Release(); rerr != nil {
		e.logger.Warn("user %d: %v", s.UserID, rerr)
	}
	if terr := e.transition(ctx, s, proto.StateError, kind); terr != nil {
		s.SetState(proto.StateError, kind)
	}
	return Result{Outcome: OutcomeFatal, Err: err}
}

// resume re-renders a pending prompt or continues the traversal.
func (e *Engine) resume(ctx context.Context, s *session.Session, mode Mode, useCache bool) (Result, error) {
	q, info, ans := s.Current()
	if q != nil && info != nil {
		switch s.State() {
		case StateAwaitSave:
			return Result{Outcome: OutcomeNeedsSaveConfirmation, Info: *info, Pending: valueOr(ans)}, nil
		case StateAwaitOther:
			return Result{Outcome: OutcomeNeedsOther, Info: *info}, nil
		case StateAwaitConfirm, StateAwaitSuggestion:
			if ans != nil {
				return pendingConfirmation(s.State(), *info, *ans), nil
			}
		}
	}
	return e.run(ctx, s, mode, useCache, s.Driver())
}

// run pulls questions until one needs the user or the form completes. d is the driver the step
// started with; only a step that started without one may open the form. Losing d to Stop ends the
// step as stopped.
func (e *Engine) run(ctx context.Context, s *session.Session, mode Mode, useCache bool, d form.Driver) (Result, error) {
	filled := 0
	for {
		if filled > e.maxQuestions {
			return Result{}, fmt.Errorf("%w: more than %d questions", ErrFormUnavailable, e.maxQuestions)
		}

		q, info, _ := s.Current()
		if q == nil {
			if err := e.transition(ctx, s, StateFetching, "next question"); err != nil {
				return Result{}, err
			}

			if d == nil {
				opened, err := e.ensureDriver(ctx, s)
				if errors.Is(err, errStopped) {
					return Result{Outcome: OutcomeStopped}, nil
				}
				if err != nil {
					return Result{}, err
				}
				d = opened
			} else if s.Driver() != d {
				return Result{Outcome: OutcomeStopped}, nil
			}

			start := s.TakeFresh()
			next, done, err := d.NextQuestion(ctx, start)
			if s.Driver() != d {
				return Result{Outcome: OutcomeStopped}, nil
			}
			if err != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrFormUnavailable, err)
			}
			if done {
				return e.complete(ctx, s, filled)
			}

			meta, err := e.readInfo(ctx, d, next)
			if s.Driver() != d {
				return Result{Outcome: OutcomeStopped}, nil
			}
			if err != nil {
				return Result{}, err
			}
			s.SetQuestion(next, meta)
			q, info = next, &meta
		}

		res, submitted, err := e.consult(ctx, s, mode, useCache, q, *info)
		if s.Driver() != d {
			return Result{Outcome: OutcomeStopped}, nil
		}
		if err != nil {
			return Result{}, err
		}
		if !submitted {
			res.AutoFilled = filled
			return res, nil
		}
		filled++
		s.ClearQuestion()
	}
}

func (e *Engine) ensureDriver(ctx context.Context, s *session.Session) (form.Driver, error) {
	if d := s.Driver(); d != nil {
		return d, nil
	}
	link := s.Link()
	if link == "" {
		return nil, fmt.Errorf("%w: %w", ErrFormUnavailable, session.ErrNoLink)
	}
	d, err := e.opener.Open(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormUnavailable, err)
	}
	if err := s.Activate(d); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: %w", ErrFormUnavailable, err)
	}
	if s.State() != StateFetching {
		// Stopped while the form was loading.
		if err := s.Release(); err != nil {
			e.logger.Warn("user %d: %v", s.UserID, err)
		}
		return nil, errStopped
	}
	e.logger.Info("user %d: opened form %s", s.UserID, link)
	return d, nil
}

// readInfo reads question metadata, re-discovering a stale element exactly once.
func (e *Engine) readInfo(ctx context.Context, d form.Driver, q form.Question) (form.Info, error) {
	info, err := q.Info(ctx)
	if errors.Is(err, form.ErrStale) {
		logx.Debug(ctx, "traversal", "stale question element, refreshing")
		el, rerr := d.RefreshElement(ctx)
		if rerr != nil {
			return form.Info{}, fmt.Errorf("%w: refresh failed: %w", ErrQuestionUnreadable, rerr)
		}
		if el == nil {
			return form.Info{}, fmt.Errorf("%w: element could not be re-discovered", ErrQuestionUnreadable)
		}
		q.SetElement(el)
		info, err = q.Info(ctx)
	}
	if err != nil {
		return form.Info{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, err)
	}
	return info, nil
}

// consult decides how the current question gets answered. submitted is true when the question was
// answered without the user.
func (e *Engine) consult(ctx context.Context, s *session.Session, mode Mode, useCache bool, q form.Question, info form.Info) (Result, bool, error) {
	if useCache {
		m, err := s.Prefs().Lookup(info.Identity)
		if err != nil {
			return Result{}, false, err
		}
		usable := m.HasAnswer() && form.Validate(info, *m.Answer) == nil

		switch {
		case usable && m.Kind == prefs.MatchExact && m.Policy == prefs.AlwaysSave:
			if err := e.submit(ctx, s, q, *m.Answer); err != nil {
				return Result{}, false, err
			}
			e.observer.ObserveAutofill("saved")
			e.logger.Info("user %d: auto-filled %q", s.UserID, info.Header)
			return Result{}, true, nil

		case usable && m.Kind == prefs.MatchExact && m.Policy == prefs.AskAgain && mode == Unattended:
			if err := e.submit(ctx, s, q, *m.Answer); err != nil {
				return Result{}, false, err
			}
			e.observer.ObserveAutofill("confirmed")
			return Result{}, true, nil

		case usable && mode == Interactive && (m.Kind == prefs.MatchClose || (m.Kind == prefs.MatchExact && m.Policy == prefs.AskAgain)):
			if err := e.transition(ctx, s, StateAwaitSuggestion, m.Kind.String()+" match"); err != nil {
				return Result{}, false, err
			}
			if err := s.SetAnswer(*m.Answer); err != nil {
				return Result{}, false, err
			}
			suggestion := SuggestSaved
			if m.Kind == prefs.MatchClose {
				suggestion = SuggestClose
			}
			return Result{
				Outcome:    OutcomeNeedsConfirmation,
				Info:       info,
				Pending:    m.Answer.Clone(),
				Suggestion: suggestion,
				Source:     m.Identity,
			}, false, nil
		}
	}

	if mode == Unattended {
		if info.Required {
			return Result{}, false, fmt.Errorf("%w: %q", ErrInputRequired, info.Header)
		}
		if err := e.submit(ctx, s, q, form.Skip()); err != nil {
			return Result{}, false, err
		}
		e.observer.ObserveAutofill("skipped")
		return Result{}, true, nil
	}

	return e.promptInput(ctx, s, info, nil)
}

// promptInput asks for the current question, or the next unanswered row of a grid.
func (e *Engine) promptInput(ctx context.Context, s *session.Session, info form.Info, invalid error) (Result, bool, error) {
	if err := e.transition(ctx, s, StateAwaitInput, "prompt"); err != nil {
		return Result{}, false, err
	}
	res := Result{Outcome: OutcomeNeedsInput, Info: info, Invalid: invalid}
	if info.IsGrid() {
		_, _, ans := s.Current()
		if ans == nil || ans.Kind != form.AnswerGrid {
			grid := form.NewGrid(info.Rows)
			if err := s.SetAnswer(grid); err != nil {
				return Result{}, false, err
			}
			ans = &grid
		}
		res.Row, _ = ans.NextRow()
	}
	return res, false, nil
}

func (e *Engine) propose(ctx context.Context, s *session.Session, a form.Answer) (Result, error) {
	_, info, ans := s.Current()
	if info == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, session.ErrNoQuestion)
	}

	if info.IsGrid() {
		if err := form.ValidateRow(*info, a); err != nil {
			res, _, perr := e.promptInput(ctx, s, *info, err)
			return res, perr
		}
		grid := form.NewGrid(info.Rows)
		if ans != nil && ans.Kind == form.AnswerGrid {
			grid = *ans
		}
		row, err := grid.Fill(a)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, err)
		}
		if err := s.SetAnswer(grid); err != nil {
			return Result{}, err
		}
		if err := e.transition(ctx, s, StateAwaitConfirm, "grid row answered"); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNeedsConfirmation, Info: *info, Row: row, Pending: a.Clone()}, nil
	}

	if err := form.Validate(*info, a); err != nil {
		res, _, perr := e.promptInput(ctx, s, *info, err)
		return res, perr
	}
	if err := s.SetAnswer(a); err != nil {
		return Result{}, err
	}
	if wantsOther(*info, a) {
		if err := e.transition(ctx, s, StateAwaitOther, "other option"); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNeedsOther, Info: *info}, nil
	}
	if err := e.transition(ctx, s, StateAwaitConfirm, "answered"); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeNeedsConfirmation, Info: *info, Pending: a.Clone()}, nil
}

func wantsOther(info form.Info, a form.Answer) bool {
	if !info.HasOther || !a.Contains(form.OtherLabel) {
		return false
	}
	for _, opt := range info.Options {
		if opt == form.OtherLabel {
			return false
		}
	}
	return true
}

func (e *Engine) provideOther(ctx context.Context, s *session.Session, text string) (Result, error) {
	_, info, ans := s.Current()
	if info == nil || ans == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, session.ErrNoQuestion)
	}
	a := ans.Replace(form.OtherLabel, text)
	if err := form.Validate(*info, a); err != nil || a.Contains(form.OtherLabel) {
		if err == nil {
			err = fmt.Errorf("%w: please describe your answer", form.ErrInvalidAnswer)
		}
		if terr := e.transition(ctx, s, StateAwaitOther, "invalid other"); terr != nil {
			return Result{}, terr
		}
		return Result{Outcome: OutcomeNeedsOther, Info: *info, Invalid: err}, nil
	}
	if err := s.SetAnswer(a); err != nil {
		return Result{}, err
	}
	if err := e.transition(ctx, s, StateAwaitConfirm, "other answered"); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeNeedsConfirmation, Info: *info, Pending: a.Clone()}, nil
}

// reject drops the pending answer: a suggestion entirely, a grid only its last row.
func (e *Engine) reject(ctx context.Context, s *session.Session) (Result, error) {
	_, info, ans := s.Current()
	if info == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, session.ErrNoQuestion)
	}

	switch {
	case s.State() == StateAwaitSuggestion:
		s.ClearAnswer()
	case ans != nil && ans.Kind == form.AnswerGrid:
		grid := *ans
		grid.ClearLast()
		if err := s.SetAnswer(grid); err != nil {
			return Result{}, err
		}
	default:
		s.ClearAnswer()
	}
	res, _, err := e.promptInput(ctx, s, *info, nil)
	return res, err
}

func (e *Engine) confirm(ctx context.Context, s *session.Session) (Result, error) {
	q, info, ans := s.Current()
	if q == nil || info == nil || ans == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, session.ErrNoQuestion)
	}
	if info.IsGrid() && ans.Kind == form.AnswerGrid && !ans.Complete() {
		res, _, err := e.promptInput(ctx, s, *info, nil)
		return res, err
	}

	d := s.Driver()
	if d == nil {
		return Result{Outcome: OutcomeStopped}, nil
	}
	err := e.submit(ctx, s, q, *ans)
	if s.Driver() != d {
		return Result{Outcome: OutcomeStopped}, nil
	}
	if err != nil {
		return Result{}, err
	}

	policy, err := s.Prefs().PolicyFor(info.Identity)
	if err != nil {
		return Result{}, err
	}
	switch policy {
	case prefs.AlwaysSave:
		if err := s.Prefs().Record(info.Identity, policy, ans); err != nil {
			return Result{}, err
		}
		s.ClearQuestion()
		return e.run(ctx, s, Interactive, true, d)
	case prefs.NeverSave:
		s.ClearQuestion()
		return e.run(ctx, s, Interactive, true, d)
	case prefs.AskAgain:
		if err := e.transition(ctx, s, StateAwaitSave, "ask to save"); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNeedsSaveConfirmation, Info: *info, Pending: ans.Clone()}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", prefs.ErrInvalidPreference, policy)
	}
}

func (e *Engine) recordSave(ctx context.Context, s *session.Session, yes bool) (Result, error) {
	_, info, ans := s.Current()
	if info == nil || ans == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrQuestionUnreadable, session.ErrNoQuestion)
	}
	d := s.Driver()
	if d == nil {
		return Result{Outcome: OutcomeStopped}, nil
	}
	if yes {
		policy, err := s.Prefs().PolicyFor(info.Identity)
		if err != nil {
			return Result{}, err
		}
		if err := s.Prefs().Record(info.Identity, policy, ans); err != nil {
			return Result{}, err
		}
		e.logger.Info("user %d: saved answer for %q", s.UserID, info.Header)
	}
	s.ClearQuestion()
	return e.run(ctx, s, Interactive, true, d)
}

// complete releases the driver after the form was submitted.
func (e *Engine) complete(ctx context.Context, s *session.Session, filled int) (Result, error) {
	if err := s.Release(); err != nil {
		e.logger.Warn("user %d: %v", s.UserID, err)
	}
	if err := e.transition(ctx, s, proto.StateDone, "form submitted"); err != nil {
		return Result{}, err
	}
	e.logger.Info("user %d: form submitted", s.UserID)
	return Result{Outcome: OutcomeDone, AutoFilled: filled}, nil
}

func pendingConfirmation(state proto.State, info form.Info, ans form.Answer) Result {
	res := Result{Outcome: OutcomeNeedsConfirmation, Info: info, Pending: ans.Clone()}
	if state == StateAwaitSuggestion {
		res.Suggestion = SuggestSaved
		return res
	}
	if cell, ok := ans.LastFilled(); ok {
		res.Row = cell.Row
		res.Pending = cell.Answer.Clone()
	}
	return res
}

func valueOr(a *form.Answer) form.Answer {
	if a == nil {
		return form.Answer{}
	}
	return a.Clone()
}
