package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all engine metrics
type Metrics struct {
	// Scheduler metrics
	TicksTotal     *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	RulesEvaluated prometheus.Gauge

	// Dispatch metrics
	JobsDispatched      prometheus.Counter
	DuplicatesSkipped   prometheus.Counter
	DispatchFailures    prometheus.Counter

	// Delivery metrics
	DeliveriesSent    *prometheus.CounterVec
	DeliveriesFailed  *prometheus.CounterVec
	DeliveryRetries   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	DeliveriesSkipped prometheus.Counter

	// Queue metrics
	QueueDepth    *prometheus.GaugeVec
	JobsReaped    prometheus.Counter
	JobsAbandoned prometheus.Counter
	ClaimFailures prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Time spent evaluating and dispatching one tick",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RulesEvaluated: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_due_last_tick",
			Help:      "Number of due rules found by the last evaluation",
		}),

		JobsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Total number of delivery jobs enqueued",
		}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_jobs_skipped_total",
			Help:      "Total number of enqueues suppressed by the idempotency key",
		}),
		DispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Total number of enqueue attempts that failed",
		}),

		DeliveriesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_sent_total",
			Help:      "Total number of notifications delivered",
		}, []string{"channel"}),
		DeliveriesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_failed_total",
			Help:      "Total number of notifications that terminally failed",
		}, []string{"channel"}),
		DeliveryRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retry_attempts_total",
			Help:      "Total number of delivery retry attempts",
		}, []string{"channel"}),
		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent executing one delivery job",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		DeliveriesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_skipped_total",
			Help:      "Total number of jobs completed as no-ops (disabled rule or dedup window)",
		}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of runnable jobs per queue",
		}, []string{"queue"}),
		JobsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reaped_total",
			Help:      "Total number of stuck processing jobs reset to pending",
		}),
		JobsAbandoned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_abandoned_total",
			Help:      "Total number of stuck jobs failed after exhausting their attempt budget",
		}),
		ClaimFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_failures_total",
			Help:      "Total number of failed queue claim attempts",
		}),

		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// New creates metrics on a private registry, for tests that construct the
// engine more than once per process.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Time spent evaluating and dispatching one tick",
		}),
		RulesEvaluated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_due_last_tick",
			Help:      "Number of due rules found by the last evaluation",
		}),
		JobsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Total number of delivery jobs enqueued",
		}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_jobs_skipped_total",
			Help:      "Total number of enqueues suppressed by the idempotency key",
		}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Total number of enqueue attempts that failed",
		}),
		DeliveriesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_sent_total",
			Help:      "Total number of notifications delivered",
		}, []string{"channel"}),
		DeliveriesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_failed_total",
			Help:      "Total number of notifications that terminally failed",
		}, []string{"channel"}),
		DeliveryRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retry_attempts_total",
			Help:      "Total number of delivery retry attempts",
		}, []string{"channel"}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent executing one delivery job",
		}),
		DeliveriesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_skipped_total",
			Help:      "Total number of jobs completed as no-ops (disabled rule or dedup window)",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of runnable jobs per queue",
		}, []string{"queue"}),
		JobsReaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reaped_total",
			Help:      "Total number of stuck processing jobs reset to pending",
		}),
		JobsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_abandoned_total",
			Help:      "Total number of stuck jobs failed after exhausting their attempt budget",
		}),
		ClaimFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_failures_total",
			Help:      "Total number of failed queue claim attempts",
		}),
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
