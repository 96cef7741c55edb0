package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records pass-level outcomes for recurring workers: cron
// jobs, reconciler passes, outbox publishing, archive consumption. Each
// worker binary registers its own subsystem so names stay distinct.
type WorkerMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	items    *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer, subsystem string) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "task_duration_seconds",
		Help:      "Duration of worker tasks in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "task_success",
		Help:      "Successful task executions.",
	}, []string{"task"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "task_failure",
		Help:      "Failed task executions.",
	}, []string{"task"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "items_total",
		Help:      "Items handled by task and outcome.",
	}, []string{"task", "outcome"})
	reg.MustRegister(duration, success, failure, items)
	return &WorkerMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		items:    items,
	}
}

// ObserveDuration records the duration for the named task.
func (w *WorkerMetrics) ObserveDuration(task string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(task)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named task.
func (w *WorkerMetrics) IncSuccess(task string) {
	if w == nil || w.success == nil {
		return
	}
	w.success.WithLabelValues(normalizeLabel(task)).Inc()
}

// IncFailure increments the failure counter for the named task.
func (w *WorkerMetrics) IncFailure(task string) {
	if w == nil || w.failure == nil {
		return
	}
	w.failure.WithLabelValues(normalizeLabel(task)).Inc()
}

// AddItems counts items handled by a task, split by outcome.
func (w *WorkerMetrics) AddItems(task, outcome string, n int) {
	if w == nil || w.items == nil || n <= 0 {
		return
	}
	w.items.WithLabelValues(normalizeLabel(task), normalizeLabel(outcome)).Add(float64(n))
}

func normalizeLabel(task string) string {
	if task == "" {
		return "unknown"
	}
	return task
}
