package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder on a dedicated registry.
type PrometheusRecorder struct {
	registry       *prometheus.Registry
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	autofillsTotal *prometheus.CounterVec
	fatalsTotal    *prometheus.CounterVec
	firesTotal     *prometheus.CounterVec
	updatesTotal   *prometheus.CounterVec
	launchAttempts *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with its own registry, including the Go runtime and
// process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formpilot_traversal_steps_total",
				Help: "Traversal operations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formpilot_traversal_step_duration_seconds",
				Help:    "Duration of traversal operations, including form driver calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"mode"},
		),
		autofillsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formpilot_autofills_total",
				Help: "Questions answered without prompting the user",
			},
			[]string{"reason"},
		),
		fatalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formpilot_traversal_failures_total",
				Help: "Traversals that ended with a fatal error",
			},
			[]string{"mode", "kind"},
		),
		firesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formpilot_scheduler_fires_total",
				Help: "Scheduled job fires by outcome",
			},
			[]string{"outcome"},
		),
		updatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formpilot_chat_updates_total",
				Help: "Chat updates received by kind",
			},
			[]string{"kind"},
		),
		launchAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formpilot_browser_launch_attempts",
				Help:    "Attempts needed to open a form in the browser",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"success"},
		),
	}
}

// Registry exposes the registry for the HTTP handler.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveStep(mode, outcome string, duration time.Duration) {
	p.stepsTotal.WithLabelValues(mode, outcome).Inc()
	p.stepDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveAutofill(reason string) {
	p.autofillsTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) ObserveFatal(mode, kind string) {
	p.fatalsTotal.WithLabelValues(mode, kind).Inc()
}

func (p *PrometheusRecorder) ObserveFire(outcome string) {
	p.firesTotal.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveUpdate(kind string) {
	p.updatesTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) ObserveBrowserLaunch(attempts int, success bool) {
	p.launchAttempts.WithLabelValues(strconv.FormatBool(success)).Observe(float64(attempts))
}
