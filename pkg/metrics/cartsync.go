package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartSyncMetrics counts server cart loads and pushes.
type CartSyncMetrics struct {
	operations *prometheus.CounterVec
	discarded  prometheus.Counter
}

func NewCartSyncMetrics(reg prometheus.Registerer) *CartSyncMetrics {
	if reg == nil {
		return &CartSyncMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medimart",
		Subsystem: "cart_sync",
		Name:      "operations_total",
		Help:      "Cart sync loads and pushes by outcome.",
	}, []string{"operation", "outcome"})
	discarded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medimart",
		Subsystem: "cart_sync",
		Name:      "stale_results_total",
		Help:      "Results dropped because the session changed while they were in flight.",
	})
	reg.MustRegister(operations, discarded)
	return &CartSyncMetrics{operations: operations, discarded: discarded}
}

func (c *CartSyncMetrics) Observe(operation string, err error) {
	if c == nil || c.operations == nil {
		return
	}
	c.operations.WithLabelValues(normalizeLabel(operation), outcome(err)).Inc()
}

func (c *CartSyncMetrics) IncDiscarded() {
	if c == nil || c.discarded == nil {
		return
	}
	c.discarded.Inc()
}
