package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Delivery related metrics
	TasksDelivered  prometheus.Counter
	TasksRequeued   prometheus.Counter
	TasksFailed     *prometheus.CounterVec
	DeliveryLatency prometheus.Histogram
	ClaimLatency    prometheus.Histogram
	QueueDepth      prometheus.Gauge

	// Submission metrics
	SubmissionsAccepted prometheus.Counter
	SubmissionsReplayed prometheus.Counter
	SubmissionConflicts prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TasksDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_delivered_total",
			Help:      "Total number of delivery tasks completed successfully",
		}),
		TasksRequeued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_requeued_total",
			Help:      "Total number of delivery tasks returned to the queue after a transient failure",
		}),
		TasksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_failed_total",
			Help:      "Total number of delivery tasks dropped permanently",
		}, []string{"reason"}),
		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one issue to one subscriber",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		ClaimLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_duration_seconds",
			Help:      "Time spent claiming a pending task",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Current number of pending delivery tasks",
		}),
		SubmissionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_submissions_accepted_total",
			Help:      "Total number of newly accepted issue submissions",
		}),
		SubmissionsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_submissions_replayed_total",
			Help:      "Total number of submissions answered from the idempotency ledger",
		}),
		SubmissionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_submission_conflicts_total",
			Help:      "Total number of submissions rejected after losing a ledger race",
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// New creates an unregistered metric bundle, used by tests to avoid
// duplicate registration in the default registry.
func New(namespace string) *Metrics {
	return &Metrics{
		TasksDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_delivered_total",
			Help:      "Total number of delivery tasks completed successfully",
		}),
		TasksRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_requeued_total",
			Help:      "Total number of delivery tasks returned to the queue after a transient failure",
		}),
		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_failed_total",
			Help:      "Total number of delivery tasks dropped permanently",
		}, []string{"reason"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one issue to one subscriber",
		}),
		ClaimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_duration_seconds",
			Help:      "Time spent claiming a pending task",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Current number of pending delivery tasks",
		}),
		SubmissionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_submissions_accepted_total",
			Help:      "Total number of newly accepted issue submissions",
		}),
		SubmissionsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_submissions_replayed_total",
			Help:      "Total number of submissions answered from the idempotency ledger",
		}),
		SubmissionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_submission_conflicts_total",
			Help:      "Total number of submissions rejected after losing a ledger race",
		}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
