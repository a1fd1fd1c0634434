package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RemindersSent      = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_sent_total", Help: "Reminder records created"})
	CooldownRejects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_cooldown_rejects_total", Help: "Sends rejected by the cooldown policy"})
	RateLimitRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_rate_limit_rejects_total", Help: "Sends rejected by the per-user rate limiter"})
	VersionConflicts   = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_version_conflicts_total", Help: "Sends that lost an optimistic-lock race"})
	PreconditionErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_precondition_errors_total", Help: "Sends rejected on missing, unassigned, or closed assignments"})
	BulkJobsSubmitted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "bulk_jobs_submitted_total", Help: "Bulk reminder jobs accepted"})
	BulkJobsCompleted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "bulk_jobs_completed_total", Help: "Bulk reminder jobs that finished processing"})
	BulkJobsFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "bulk_jobs_failed_total", Help: "Bulk reminder jobs that hit a coordinator-fatal error"})
	BulkItemsProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "bulk_items_processed_total", Help: "Individual items processed across bulk jobs"})
	QueueDepthGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bulk_queue_depth", Help: "Bulk jobs waiting in the ready queue"})
	InFlightGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bulk_jobs_inflight", Help: "Bulk jobs currently leased by a worker"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RemindersSent,
			CooldownRejects,
			RateLimitRejects,
			VersionConflicts,
			PreconditionErrors,
			BulkJobsSubmitted,
			BulkJobsCompleted,
			BulkJobsFailed,
			BulkItemsProcessed,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
