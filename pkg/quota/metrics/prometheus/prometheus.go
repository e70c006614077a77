// Package prommetrics provides a Prometheus implementation of the
// quota.Metrics interface.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements quota.Metrics using Prometheus.
type Metrics struct {
	checksTotal        *prometheus.CounterVec
	refundsTotal       *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
	storageOpsErrors   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_checks_total",
			Help:      "Total number of usage check decisions.",
		}, []string{"authenticated", "allowed"}),

		refundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_refunds_total",
			Help:      "Total number of usage refund attempts.",
		}, []string{"success"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of failed storage operations.",
		}, []string{"operation"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of the full generation pipeline by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
	}
}

// RecordCheck implements quota.Metrics
func (m *Metrics) RecordCheck(authenticated, allowed bool) {
	m.checksTotal.WithLabelValues(
		strconv.FormatBool(authenticated),
		strconv.FormatBool(allowed),
	).Inc()
}

// RecordRefund implements quota.Metrics
func (m *Metrics) RecordRefund(err error) {
	m.refundsTotal.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

// RecordStorageOperation implements quota.Metrics
func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

// RecordGeneration implements quota.Metrics
func (m *Metrics) RecordGeneration(status string, duration time.Duration) {
	m.generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}
