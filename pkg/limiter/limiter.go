// Package limiter bounds how many forms the shared browser holds open and how fast new ones are
// loaded.
package limiter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"formpilot/pkg/config"
)

var (
	// ErrRateLimit is returned when the per-minute open budget is spent.
	ErrRateLimit = errors.New("form open rate limit exceeded")
	// ErrCapacity is returned when every form slot is taken.
	ErrCapacity = errors.New("too many forms open")
)

// Limiter enforces a slot limit on open forms and a token bucket on form loads.
type Limiter struct {
	mu sync.Mutex

	maxOpen int
	open    int

	maxPerMinute int
	tokens       int
	lastRefill   time.Time

	now func() time.Time
}

// New creates a limiter from cfg. A zero limit is not enforced.
func New(cfg config.LimitsConfig) *Limiter {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg config.LimitsConfig, now func() time.Time) *Limiter {
	return &Limiter{
		maxOpen:      cfg.MaxOpenForms,
		maxPerMinute: cfg.OpensPerMinute,
		tokens:       cfg.OpensPerMinute, // Start with full bucket
		lastRefill:   now(),
		now:          now,
	}
}

// Acquire takes a form slot and one open token. Both are checked before either is consumed, so a
// refusal leaves the limiter unchanged.
func (l *Limiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()

	if l.maxOpen > 0 && l.open >= l.maxOpen {
		return fmt.Errorf("%w (%d of %d)", ErrCapacity, l.open, l.maxOpen)
	}
	if l.maxPerMinute > 0 && l.tokens < 1 {
		return ErrRateLimit
	}

	l.open++
	if l.maxPerMinute > 0 {
		l.tokens--
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open <= 0 {
		return errors.New("no open forms to release")
	}
	l.open--
	return nil
}

// Status reports the open forms and the tokens left in the current minute.
func (l *Limiter) Status() (open, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()
	return l.open, l.tokens
}

func (l *Limiter) refillTokens() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)

	if elapsed >= time.Minute {
		minutes := int(elapsed / time.Minute)
		l.tokens += minutes * l.maxPerMinute
		if l.tokens > l.maxPerMinute {
			l.tokens = l.maxPerMinute
		}

		// Advance to the last complete minute so partial minutes carry over.
		l.lastRefill = l.lastRefill.Add(time.Duration(minutes) * time.Minute)
	}
}
