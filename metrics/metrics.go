// Package metrics exposes Prometheus instrumentation for the registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ruteri/certificate-registry/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

// NewRegistry returns a Prometheus registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// RegistryMetrics counts registry operations by outcome. A nil *RegistryMetrics is valid and records nothing.
type RegistryMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRegistryMetrics registers the registry collectors with reg.
func NewRegistryMetrics(reg prometheus.Registerer) *RegistryMetrics {
	factory := promauto.With(reg)
	return &RegistryMetrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "operations_total",
			Help:      "registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: common.PackageName,
			Name:      "operation_duration_seconds",
			Help:      "latency of registry operations including storage access",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"operation"}),
	}
}

// Observe records one operation. The outcome label is the error kind of err.
func (m *RegistryMetrics) Observe(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, interfaces.ErrorKind(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
