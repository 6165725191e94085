package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campus"

var (
	// Registrations counts registration attempts by outcome:
	// created, existing, not_eligible, not_found, invalid, error.
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_registrations_total",
		Help:      "Attendance registration attempts by outcome.",
	}, []string{"outcome"})

	// Verdicts counts server-side engine evaluations by phase.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eligibility_verdicts_total",
		Help:      "Server-side eligibility verdicts by phase.",
	}, []string{"phase"})

	// AutoCompletions counts meetings moved to completed, by trigger
	// (registration, sweep, request).
	AutoCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "meeting_auto_completions_total",
		Help:      "Meetings automatically moved to completed.",
	}, []string{"trigger"})

	StorageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "storage_operation_seconds",
		Help:      "Latency of content repository calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_messages_total",
		Help:      "Work queue messages processed by type and result.",
	}, []string{"type", "result"})
)
