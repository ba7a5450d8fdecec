// Package prefs holds a user's remembered answers and the save policy that governs them.
package prefs

import (
	"errors"
	"fmt"
)

// Policy decides what happens to an answer after it is submitted.
type Policy string

const (
	AlwaysSave Policy = "always"
	NeverSave  Policy = "never"
	AskAgain   Policy = "ask"
)

// DefaultPolicy is the global policy of a new cache.
const DefaultPolicy = AskAgain

// ErrInvalidPreference means a stored policy is outside the known set.
var ErrInvalidPreference = errors.New("invalid save preference")

func (p Policy) Valid() bool {
	switch p {
	case AlwaysSave, NeverSave, AskAgain:
		return true
	default:
		return false
	}
}

// Label is the human-readable name used in menus.
func (p Policy) Label() string {
	switch p {
	case AlwaysSave:
		return "Always save"
	case NeverSave:
		return "Never save"
	case AskAgain:
		return "Ask every time"
	default:
		return string(p)
	}
}

// ParsePolicy validates a stored or user-supplied policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPreference, s)
	}
	return p, nil
}

// Policies lists the policies in menu order.
func Policies() []Policy {
	return []Policy{AlwaysSave, NeverSave, AskAgain}
}
