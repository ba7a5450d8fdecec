package prefs

import (
	"encoding/json"
	"fmt"
	"sync"

	"formpilot/pkg/form"
)

// MatchKind is the outcome of a Lookup.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchClose
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchClose:
		return "close"
	default:
		return "none"
	}
}

// Entry is the preference for one question identity.
type Entry struct {
	Identity form.Identity `json:"identity"`
	Policy   Policy        `json:"policy"`
	Answer   *form.Answer  `json:"answer,omitempty"`
}

// Match is the result of a Lookup. Identity is the matched stored identity, which differs from
// the queried one for close matches.
type Match struct {
	Kind     MatchKind
	Identity form.Identity
	Policy   Policy
	Answer   *form.Answer
}

// HasAnswer reports whether the match carries a saved answer.
func (m Match) HasAnswer() bool {
	return m.Answer != nil && !m.Answer.IsEmpty()
}

// Cache keeps a global default policy and a per-identity override map in insertion order.
type Cache struct {
	mu      sync.RWMutex
	global  Policy
	order   []string
	entries map[string]*Entry
}

func NewCache() *Cache {
	return &Cache{global: DefaultPolicy, entries: make(map[string]*Entry)}
}

// Global returns the default policy for identities without an entry.
func (c *Cache) Global() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global
}

func (c *Cache) SetGlobal(p Policy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPreference, p)
	}
	c.mu.Lock()
	c.global = p
	c.mu.Unlock()
	return nil
}

// Lookup finds a stored preference for id. An exact entry always wins. Otherwise the first
// stored identity, in insertion order, with the same header and a matching description or a
// matching required flag and a saved answer is returned as a close match.
func (c *Cache) Lookup(id form.Identity) (Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[id.Key()]; ok {
		if !e.Policy.Valid() {
			return Match{}, fmt.Errorf("%w: %q stored for %q", ErrInvalidPreference, e.Policy, id.Header)
		}
		return Match{Kind: MatchExact, Identity: e.Identity, Policy: e.Policy, Answer: cloneAnswer(e.Answer)}, nil
	}

	for _, key := range c.order {
		e := c.entries[key]
		if !isClose(e.Identity, id) || e.Answer == nil || e.Answer.IsEmpty() {
			continue
		}
		return Match{Kind: MatchClose, Identity: e.Identity, Policy: e.Policy, Answer: cloneAnswer(e.Answer)}, nil
	}
	return Match{Kind: MatchNone}, nil
}

// isClose allows exactly one of description and required flag to differ.
func isClose(stored, want form.Identity) bool {
	if stored.Header != want.Header {
		return false
	}
	return stored.Description == want.Description || stored.Required == want.Required
}

// PolicyFor returns the policy that applies to id, creating the per-identity entry from the
// global default if none exists yet.
func (c *Cache) PolicyFor(id form.Identity) (Policy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensureLocked(id)
	if !e.Policy.Valid() {
		return "", fmt.Errorf("%w: %q stored for %q", ErrInvalidPreference, e.Policy, id.Header)
	}
	return e.Policy, nil
}

// Record upserts the entry for id. A nil answer keeps any previously saved answer.
func (c *Cache) Record(id form.Identity, p Policy, answer *form.Answer) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPreference, p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensureLocked(id)
	e.Policy = p
	if answer != nil {
		e.Answer = cloneAnswer(answer)
	}
	return nil
}

// SetPolicy changes the policy of an existing entry. Switching to NeverSave drops the saved answer.
func (c *Cache) SetPolicy(id form.Identity, p Policy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPreference, p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensureLocked(id)
	e.Policy = p
	if p == NeverSave {
		e.Answer = nil
	}
	return nil
}

// ForgetAnswer drops the saved answer for id but keeps its policy.
func (c *Cache) ForgetAnswer(id form.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id.Key()]
	if !ok || e.Answer == nil {
		return false
	}
	e.Answer = nil
	return true
}

// Entries returns copies of all per-identity entries in insertion order.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.order))
	for _, key := range c.order {
		e := c.entries[key]
		out = append(out, Entry{Identity: e.Identity, Policy: e.Policy, Answer: cloneAnswer(e.Answer)})
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Clear resets the cache to a fresh state.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = DefaultPolicy
	c.order = nil
	c.entries = make(map[string]*Entry)
}

func (c *Cache) ensureLocked(id form.Identity) *Entry {
	key := id.Key()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &Entry{Identity: id, Policy: c.global}
	c.entries[key] = e
	c.order = append(c.order, key)
	return e
}

func cloneAnswer(a *form.Answer) *form.Answer {
	if a == nil {
		return nil
	}
	c := a.Clone()
	return &c
}

type cacheJSON struct {
	Global  Policy  `json:"global"`
	Entries []Entry `json:"entries"`
}

// MarshalJSON keeps insertion order by encoding entries as a list.
func (c *Cache) MarshalJSON() ([]byte, error) {
	return json.Marshal(cacheJSON{Global: c.Global(), Entries: c.Entries()})
}

// UnmarshalJSON restores a cache as stored. Policies are not validated here; a corrupted policy
// surfaces as ErrInvalidPreference when Lookup or PolicyFor reaches it.
func (c *Cache) UnmarshalJSON(data []byte) error {
	var raw cacheJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode preferences: %w", err)
	}
	if raw.Global == "" {
		raw.Global = DefaultPolicy
	}

	entries := make(map[string]*Entry, len(raw.Entries))
	order := make([]string, 0, len(raw.Entries))
	for i := range raw.Entries {
		e := raw.Entries[i]
		key := e.Identity.Key()
		if _, dup := entries[key]; !dup {
			order = append(order, key)
		}
		entries[key] = &e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = raw.Global
	c.entries = entries
	c.order = order
	return nil
}
