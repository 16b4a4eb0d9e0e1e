// Package observability provides meta.MetricsRecorder and meta.Tracer
// implementations: Prometheus collectors, expvar totals and a JSON-lines
// span writer.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"metastore/pkg/meta"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// PrometheusRecorder counts and times store operations.
type PrometheusRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ meta.MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the metastore collectors on reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metastore_operations_total",
			Help: "Total metadata store operations by operation and status",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metastore_operation_duration_seconds",
			Help:    "Duration of metadata store operations including load and save",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}, []string{"operation"}),
	}
}

// Observe implements meta.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := statusError
	if success {
		status = statusSuccess
	}
	r.total.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
