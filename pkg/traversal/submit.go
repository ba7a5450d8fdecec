package traversal

import (
	"context"
	"fmt"

	"formpilot/pkg/form"
	"formpilot/pkg/session"
)

// submit hands an answer to the driver. Empty answers are a no-op, skip goes through the
// driver's skip path, everything else is forwarded part by part. Failures are not retried.
func (e *Engine) submit(ctx context.Context, s *session.Session, q form.Question, a form.Answer) error {
	d := s.Driver()
	if d == nil {
		return fmt.Errorf("%w: %w", ErrDriverSubmitFailed, session.ErrNoDriver)
	}

	switch a.Kind {
	case form.AnswerEmpty:
		return nil
	case form.AnswerSkip:
		if err := d.Skip(ctx); err != nil {
			return fmt.Errorf("%w: skip: %w", ErrDriverSubmitFailed, err)
		}
		return nil
	case form.AnswerScalar, form.AnswerTuple, form.AnswerGrid:
		parts, err := a.Parts()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDriverSubmitFailed, err)
		}
		if len(parts) == 0 {
			return nil
		}
		if err := q.Answer(ctx, parts...); err != nil {
			return fmt.Errorf("%w: %w", ErrDriverSubmitFailed, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %w: %d", ErrDriverSubmitFailed, form.ErrUnknownAnswerKind, int(a.Kind))
	}
}
