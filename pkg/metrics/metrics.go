package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scheduler metrics
	RemindersScheduled prometheus.Counter
	RemindersPaused    prometheus.Counter
	RemindersResumed   prometheus.Counter
	RemindersReset     prometheus.Counter
	ScheduleFailures   prometheus.Counter
	CancelFailures     prometheus.Counter

	// Job queue metrics
	JobsEnqueued    prometheus.Counter
	JobsFired       prometheus.Counter
	JobsCancelled   prometheus.Counter
	QueuePollLag    prometheus.Histogram
	JobHandlerError prometheus.Counter

	// Delivery metrics
	Deliveries        *prometheus.CounterVec
	EndpointsRemoved  prometheus.Counter
	RemindersSent     prometheus.Counter
	RemindersOrphaned prometheus.Counter
}

// New creates and registers all application metrics under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		RemindersScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_scheduled_total",
			Help:      "Total number of step reminders created",
		}),
		RemindersPaused: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_paused_total",
			Help:      "Total number of step reminders paused",
		}),
		RemindersResumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_resumed_total",
			Help:      "Total number of step reminders resumed",
		}),
		RemindersReset: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_reset_total",
			Help:      "Total number of step reminders reset",
		}),
		ScheduleFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_schedule_failures_total",
			Help:      "Reminder rows left without a scheduled job after an enqueue failure",
		}),
		CancelFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_cancel_failures_total",
			Help:      "Best-effort job cancellations that failed",
		}),
		JobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of delayed jobs enqueued",
		}),
		JobsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_fired_total",
			Help:      "Total number of delayed jobs dispatched to the consumer",
		}),
		JobsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_cancelled_total",
			Help:      "Total number of delayed jobs cancelled before firing",
		}),
		QueuePollLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_poll_lag_seconds",
			Help:      "Time between a job's due instant and its dispatch",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		JobHandlerError: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_handler_errors_total",
			Help:      "Total number of job handler invocations that returned an error",
		}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Push delivery attempts by outcome",
		}, []string{"outcome"}),
		EndpointsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_endpoints_removed_total",
			Help:      "Dead push endpoints removed by self-healing",
		}),
		RemindersSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders delivered to at least one endpoint",
		}),
		RemindersOrphaned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_orphaned_total",
			Help:      "Reminders whose every delivery attempt failed at fire time",
		}),
	}
}
