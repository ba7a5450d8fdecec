package session

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Markup is the transient state behind one outstanding prompt. Every option token issued for the
// prompt starts with Scope, so callbacks from an older prompt can be told apart and rejected.
type Markup struct {
	Scope   string
	Dialog  string
	choices []string
	Data    map[string]string
}

// NewMarkup starts a fresh token scope for a prompt of the given dialog.
func NewMarkup(dialog string) *Markup {
	return &Markup{
		Scope:  strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Dialog: dialog,
		Data:   make(map[string]string),
	}
}

// Token registers value and returns the callback token that selects it.
func (m *Markup) Token(value string) string {
	m.choices = append(m.choices, value)
	return m.Scope + ":" + strconv.Itoa(len(m.choices)-1)
}

// Resolve maps a callback token back to its value. ok is false for tokens of another scope.
func (m *Markup) Resolve(token string) (string, bool) {
	scope, idx, found := strings.Cut(token, ":")
	if !found || scope != m.Scope {
		return "", false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(m.choices) {
		return "", false
	}
	return m.choices[i], true
}
