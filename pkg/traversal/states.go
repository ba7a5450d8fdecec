package traversal

import (
	"formpilot/pkg/proto"
	"formpilot/pkg/session"
)

// Traversal states.
const (
	// StateIdle - no traversal in progress; the session holds an idle link.
	StateIdle = session.StateIdle
	// StateFetching - a step is pulling the next question from the driver or auto-filling it.
	StateFetching proto.State = "FETCHING"
	// StateAwaitInput - the current question (or grid row) is waiting for the user's answer.
	StateAwaitInput proto.State = "AWAIT_INPUT"
	// StateAwaitOther - an "Other" choice was picked and its free text is pending.
	StateAwaitOther proto.State = "AWAIT_OTHER"
	// StateAwaitConfirm - the user's own answer is waiting for confirmation.
	StateAwaitConfirm proto.State = "AWAIT_CONFIRM"
	// StateAwaitSuggestion - a remembered answer is proposed and waiting for confirmation.
	StateAwaitSuggestion proto.State = "AWAIT_SUGGESTION"
	// StateAwaitSave - the answer was submitted and the user decides whether to remember it.
	StateAwaitSave proto.State = "AWAIT_SAVE"
)

// Input is the kind of event fed to the engine.
type Input string

const (
	InputAdvance      Input = "advance"
	InputAnswer       Input = "answer"
	InputOther        Input = "other"
	InputConfirm      Input = "confirm"
	InputReject       Input = "reject"
	InputSaveDecision Input = "save_decision"
	InputStop         Input = "stop"
)

// validTransitions defines the traversal state machine.
//
//nolint:gochecknoglobals // Intentional package-level constant for state machine definition
var validTransitions = map[proto.State][]proto.State{
	StateIdle: {
		StateFetching,
		StateIdle,
	},
	StateFetching: {
		StateFetching, // auto-filled question, pull the next one
		StateAwaitInput,
		StateAwaitSuggestion,
		proto.StateDone,
		proto.StateError,
		StateIdle,
	},
	StateAwaitInput: {
		StateAwaitInput, // invalid answer or re-prompt
		StateAwaitOther,
		StateAwaitConfirm,
		StateAwaitSuggestion,
		StateFetching,
		proto.StateError,
		StateIdle,
	},
	StateAwaitOther: {
		StateAwaitOther,
		StateAwaitConfirm,
		proto.StateError,
		StateIdle,
	},
	StateAwaitConfirm: {
		StateAwaitConfirm,
		StateAwaitInput, // rejected, or next grid row
		StateAwaitSuggestion,
		StateAwaitSave,
		StateFetching,
		proto.StateError,
		StateIdle,
	},
	StateAwaitSuggestion: {
		StateAwaitSuggestion,
		StateAwaitInput,
		StateAwaitSave,
		StateFetching,
		proto.StateError,
		StateIdle,
	},
	StateAwaitSave: {
		StateAwaitSave,
		StateFetching,
		proto.StateError,
		StateIdle,
	},
	proto.StateDone: {
		StateFetching,
		StateIdle,
	},
	proto.StateError: {
		StateFetching,
		StateIdle,
	},
}

// acceptedInputs lists the inputs each state reacts to. Anything else is ignored.
//
//nolint:gochecknoglobals // Intentional package-level constant for state machine definition
var acceptedInputs = map[proto.State][]Input{
	StateIdle:            {InputAdvance, InputStop},
	StateFetching:        {InputStop},
	StateAwaitInput:      {InputAdvance, InputAnswer, InputStop},
	StateAwaitOther:      {InputAdvance, InputOther, InputStop},
	StateAwaitConfirm:    {InputAdvance, InputConfirm, InputReject, InputStop},
	StateAwaitSuggestion: {InputAdvance, InputConfirm, InputReject, InputStop},
	StateAwaitSave:       {InputAdvance, InputSaveDecision, InputStop},
	proto.StateDone:      {InputAdvance, InputStop},
	proto.StateError:     {InputAdvance, InputStop},
}

// IsValidTransition checks if a state transition is allowed.
func IsValidTransition(from, to proto.State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Accepts reports whether state reacts to input.
func Accepts(state proto.State, input Input) bool {
	for _, in := range acceptedInputs[state] {
		if in == input {
			return true
		}
	}
	return false
}

// AllStates returns every traversal state.
func AllStates() []proto.State {
	return []proto.State{
		StateIdle,
		StateFetching,
		StateAwaitInput,
		StateAwaitOther,
		StateAwaitConfirm,
		StateAwaitSuggestion,
		StateAwaitSave,
		proto.StateDone,
		proto.StateError,
	}
}

// AllInputs returns every input kind.
func AllInputs() []Input {
	return []Input{InputAdvance, InputAnswer, InputOther, InputConfirm, InputReject, InputSaveDecision, InputStop}
}

// ValidNextStates returns the valid next states for a given state.
func ValidNextStates(from proto.State) []proto.State {
	return validTransitions[from]
}
