package traversal

import (
	"time"

	"formpilot/pkg/form"
)

// Mode selects who answers the questions.
type Mode int

const (
	Interactive Mode = iota
	Unattended
)

func (m Mode) String() string {
	if m == Unattended {
		return "unattended"
	}
	return "interactive"
}

// Outcome tells the caller what to render next.
type Outcome int

const (
	// OutcomeDone - the form was submitted and the driver released.
	OutcomeDone Outcome = iota
	// OutcomeNeedsInput - prompt for Info (the Row of a grid).
	OutcomeNeedsInput
	// OutcomeNeedsOther - ask for the free text behind an "Other" choice.
	OutcomeNeedsOther
	// OutcomeNeedsConfirmation - ask the user to confirm Pending.
	OutcomeNeedsConfirmation
	// OutcomeNeedsSaveConfirmation - ask whether Pending should be remembered.
	OutcomeNeedsSaveConfirmation
	// OutcomeFatal - the traversal ended with Err; the session is idle again.
	OutcomeFatal
	// OutcomeBusy - another step holds the session; nothing happened.
	OutcomeBusy
	// OutcomeIgnored - the input does not apply to the current state; nothing happened.
	OutcomeIgnored
	// OutcomeStopped - the traversal was stopped while this step was running.
	OutcomeStopped
)

var outcomeNames = [...]string{
	"done", "needs_input", "needs_other", "needs_confirmation",
	"needs_save_confirmation", "fatal", "busy", "ignored", "stopped",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Suggestion says where a proposed answer came from.
type Suggestion int

const (
	SuggestNone Suggestion = iota
	// SuggestSaved - an exact saved answer under the AskAgain policy.
	SuggestSaved
	// SuggestClose - a saved answer of a similar question.
	SuggestClose
)

// Result is the outcome of one engine operation.
type Result struct {
	Outcome Outcome
	Info    form.Info
	// Row is the grid row being asked for or confirmed.
	Row string
	// Pending is the answer awaiting confirmation. For a grid row it holds that row's answer.
	Pending    form.Answer
	Suggestion Suggestion
	// Source is the stored identity a close match came from.
	Source form.Identity
	// Invalid explains why the last input was rejected.
	Invalid error
	// AutoFilled counts questions answered from saved preferences during this call.
	AutoFilled int
	Err        error
}

// Observer receives engine telemetry.
type Observer interface {
	ObserveStep(mode, outcome string, elapsed time.Duration)
	ObserveAutofill(reason string)
	ObserveFatal(mode, kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, string, time.Duration) {}
func (nopObserver) ObserveAutofill(string)                    {}
func (nopObserver) ObserveFatal(string, string)               {}
