package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	jobsEnqueuedTotal      *prometheus.CounterVec
	jobsProcessedTotal     *prometheus.CounterVec
	answersRecalculated    prometheus.Counter
	recalcEventsTotal      prometheus.Counter
	bulkItemsTotal         *prometheus.CounterVec
	gradesReleasedTotal    prometheus.Counter
	auditWriteRetriesTotal prometheus.Counter
	gradingDurationSeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors for the grading core.
func RegisterMetrics() {
	registerOnce.Do(func() {
		jobsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_jobs_enqueued_total",
			Help: "Total number of background jobs enqueued.",
		}, []string{"kind"})

		jobsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_jobs_processed_total",
			Help: "Background job attempts by outcome.",
		}, []string{"kind", "status"})

		answersRecalculated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_answers_recalculated_total",
			Help: "Answers whose score changed during a recalculation cascade.",
		})

		recalcEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_recalculated_events_total",
			Help: "GradeRecalculated events emitted by cascades.",
		})

		bulkItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_bulk_items_total",
			Help: "Bulk operation items by operation and result.",
		}, []string{"operation", "result"})

		gradesReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_grades_released_total",
			Help: "Grades made visible to students.",
		})

		auditWriteRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_audit_write_retries_total",
			Help: "Audit entries re-queued after a transient write failure.",
		})

		gradingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_pass_duration_seconds",
			Help:    "Latency distribution for grading passes over one submission.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})

		prometheus.MustRegister(
			jobsEnqueuedTotal,
			jobsProcessedTotal,
			answersRecalculated,
			recalcEventsTotal,
			bulkItemsTotal,
			gradesReleasedTotal,
			auditWriteRetriesTotal,
			gradingDurationSeconds,
		)
	})
}

// JobsEnqueued exposes the enqueue counter.
func JobsEnqueued() *prometheus.CounterVec {
	RegisterMetrics()
	return jobsEnqueuedTotal
}

// JobsProcessed exposes the job outcome counter.
func JobsProcessed() *prometheus.CounterVec {
	RegisterMetrics()
	return jobsProcessedTotal
}

// AnswersRecalculated exposes the cascade answer-change counter.
func AnswersRecalculated() prometheus.Counter {
	RegisterMetrics()
	return answersRecalculated
}

// RecalcEvents exposes the GradeRecalculated event counter.
func RecalcEvents() prometheus.Counter {
	RegisterMetrics()
	return recalcEventsTotal
}

// BulkItems exposes the bulk operation item counter.
func BulkItems() *prometheus.CounterVec {
	RegisterMetrics()
	return bulkItemsTotal
}

// GradesReleased exposes the released grade counter.
func GradesReleased() prometheus.Counter {
	RegisterMetrics()
	return gradesReleasedTotal
}

// AuditWriteRetries exposes the audit retry counter.
func AuditWriteRetries() prometheus.Counter {
	RegisterMetrics()
	return auditWriteRetriesTotal
}

// GradingDuration exposes the grading pass latency histogram.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDurationSeconds
}
