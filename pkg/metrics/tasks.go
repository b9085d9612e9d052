package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskMetrics tracks the background task queue.
type TaskMetrics struct {
	submitted *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewTaskMetrics registers the task metrics on the provided registerer.
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	if reg == nil {
		return &TaskMetrics{}
	}
	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "submitted_total",
		Help:      "Tasks accepted by the gateway.",
	}, []string{"kind"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "completed_total",
		Help:      "Task executions by outcome (succeeded, failed, retried).",
	}, []string{"kind", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "duration_seconds",
		Help:      "Handler execution time in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})
	reg.MustRegister(submitted, completed, duration)
	return &TaskMetrics{
		submitted: submitted,
		completed: completed,
		duration:  duration,
	}
}

// IncSubmitted counts a task accepted for the given kind.
func (m *TaskMetrics) IncSubmitted(kind string) {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveCompletion records the outcome and handler duration of one execution.
func (m *TaskMetrics) ObserveCompletion(kind, outcome string, elapsed time.Duration) {
	if m == nil || m.completed == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.completed.WithLabelValues(kind, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
