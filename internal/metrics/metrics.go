// Package metrics provides Prometheus metrics for the delivery engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all delivery metrics.
	Namespace = "distro"

	// Subsystem is the subsystem for delivery metrics.
	Subsystem = "delivery"
)

// Metrics holds all Prometheus metrics for deliveries.
type Metrics struct {
	TriggersTotal        *prometheus.CounterVec
	AttemptsTotal        *prometheus.CounterVec
	DeliveriesTotal      *prometheus.CounterVec
	RetriesScheduled     *prometheus.CounterVec
	LockOutcomes         *prometheus.CounterVec
	BytesTransferred     *prometheus.CounterVec
	AttemptDuration      *prometheus.HistogramVec
	DeliveriesInProgress prometheus.Gauge
}

// New creates and registers all delivery metrics on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TriggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "triggers_total",
				Help:      "Delivery trigger requests by result code",
			},
			[]string{"code"},
		),
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "attempts_total",
				Help:      "Delivery attempts by protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "jobs_finished_total",
				Help:      "Jobs reaching a terminal status",
			},
			[]string{"protocol", "status"},
		),
		RetriesScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "retries_scheduled_total",
				Help:      "Retries scheduled by attempt number",
			},
			[]string{"attempt"},
		),
		LockOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "lock_outcomes_total",
				Help:      "Lock acquisition results",
			},
			[]string{"outcome"},
		),
		BytesTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "bytes_transferred_total",
				Help:      "Bytes delivered by protocol",
			},
			[]string{"protocol"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of delivery attempts in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 13), // 0.1s to ~7min
			},
			[]string{"protocol"},
		),
		DeliveriesInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "in_progress",
				Help:      "Deliveries currently holding a lock on this instance",
			},
		),
	}
}
