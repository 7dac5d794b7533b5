package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hvctl"

// Metrics holds the operation counters. All methods are safe on a nil
// receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	targets    *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Lifecycle operations by kind, operation and outcome",
			},
			[]string{"kind", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent in a single lifecycle operation, connection included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "operation"},
		),
		targets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_targets",
				Help:      "Number of targets in the last batch",
			},
			[]string{"operation"},
		),
	}
	m.registry.MustRegister(m.operations, m.duration, m.targets)
	return m
}

// ObserveOperation records one finished unit.
func (m *Metrics) ObserveOperation(kind, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, operation, outcome).Inc()
	m.duration.WithLabelValues(kind, operation).Observe(d.Seconds())
}

// ObserveBatch records the size of a batch.
func (m *Metrics) ObserveBatch(operation string, targets int) {
	if m == nil {
		return
	}
	m.targets.WithLabelValues(operation).Set(float64(targets))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
