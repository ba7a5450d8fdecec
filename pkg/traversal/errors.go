package traversal

import (
	"errors"

	"formpilot/pkg/prefs"
)

// Fatal errors end the current traversal and release the driver.
var (
	ErrFormUnavailable    = errors.New("form unavailable")
	ErrQuestionUnreadable = errors.New("question unreadable")
	ErrDriverSubmitFailed = errors.New("failed to submit answer to form")
	// ErrInputRequired is returned by unattended runs that reach a required question
	// with no usable saved answer.
	ErrInputRequired     = errors.New("required question has no saved answer")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// errStopped means Stop released the session while the step was opening the form.
var errStopped = errors.New("traversal stopped")

// ErrUnexpectedInput marks input that the current state does not accept. It is never fatal.
var ErrUnexpectedInput = errors.New("input not expected in current state")

// FatalKind names the category of a fatal error for logs and metrics.
func FatalKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFormUnavailable):
		return "form_unavailable"
	case errors.Is(err, ErrQuestionUnreadable):
		return "question_unreadable"
	case errors.Is(err, ErrDriverSubmitFailed):
		return "driver_submit_failed"
	case errors.Is(err, prefs.ErrInvalidPreference):
		return "invalid_preference"
	case errors.Is(err, ErrInputRequired):
		return "input_required"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "other"
	}
}
