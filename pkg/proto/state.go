package proto

// State names a node of a state machine. Packages declare their own states of this type and a
// transition table over them.
type State string

// Shared states every machine can reach.
const (
	StateDone  State = "DONE"
	StateError State = "ERROR"
)

func (s State) String() string {
	return string(s)
}
