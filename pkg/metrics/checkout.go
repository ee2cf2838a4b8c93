package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records per-step timings and outcomes of checkout runs.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	steps    *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medimart",
		Subsystem: "checkout",
		Name:      "step_duration_seconds",
		Help:      "Duration of checkout steps in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medimart",
		Subsystem: "checkout",
		Name:      "step_total",
		Help:      "Checkout step executions by outcome.",
	}, []string{"step", "outcome"})
	reg.MustRegister(duration, steps)
	return &CheckoutMetrics{duration: duration, steps: steps}
}

// ObserveStep records one step execution.
func (c *CheckoutMetrics) ObserveStep(step string, elapsed time.Duration, err error) {
	if c == nil || c.duration == nil {
		return
	}
	step = normalizeLabel(step)
	c.duration.WithLabelValues(step).Observe(elapsed.Seconds())
	c.steps.WithLabelValues(step, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
