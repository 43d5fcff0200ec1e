// Package metrics exports service operations as Prometheus series.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cimillas/flashsale/internal/app"
)

const namespace = "flashsale"

// Collector counts operations by name and outcome and records their latency.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	items      *prometheus.CounterVec
}

var _ app.Observer = (*Collector)(nil)

// NewCollector registers the collector's series on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Rows handled by sweep, reconcile and prune runs.",
		}, []string{"operation"}),
	}
	for _, collector := range []prometheus.Collector{c.operations, c.duration, c.items} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) Observe(_ context.Context, op app.Operation) {
	c.operations.WithLabelValues(op.Name, op.Outcome).Inc()
	c.duration.WithLabelValues(op.Name).Observe(op.Duration.Seconds())
	if op.Count > 0 {
		c.items.WithLabelValues(op.Name).Add(float64(op.Count))
	}
}
