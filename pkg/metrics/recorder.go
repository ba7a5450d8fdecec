// Package metrics records traversal, scheduler and chat activity for Prometheus.
package metrics

import (
	"time"
)

// Recorder is everything the bot reports. It satisfies traversal.Observer and
// scheduler.FireObserver.
type Recorder interface {
	// ObserveStep records one traversal operation and how long it took.
	ObserveStep(mode, outcome string, duration time.Duration)
	// ObserveAutofill counts questions answered without the user.
	ObserveAutofill(reason string)
	// ObserveFatal counts traversals that ended in an error.
	ObserveFatal(mode, kind string)
	// ObserveFire counts scheduled job fires by outcome.
	ObserveFire(outcome string)
	// ObserveUpdate counts chat updates by kind.
	ObserveUpdate(kind string)
	// ObserveBrowserLaunch records browser launch attempts until success or give-up.
	ObserveBrowserLaunch(attempts int, success bool)
}

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveStep(_, _ string, _ time.Duration) {}

func (n *NoopRecorder) ObserveAutofill(_ string) {}

func (n *NoopRecorder) ObserveFatal(_, _ string) {}

func (n *NoopRecorder) ObserveFire(_ string) {}

func (n *NoopRecorder) ObserveUpdate(_ string) {}

func (n *NoopRecorder) ObserveBrowserLaunch(_ int, _ bool) {}
