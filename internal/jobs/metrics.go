// Package jobmetrics instruments the task handlers run by the worker.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded per task run.
const (
	OutcomeOK      = "ok"
	OutcomeRetry   = "retry"
	OutcomeDropped = "dropped"
)

// Metrics holds the task collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  *prometheus.GaugeVec
}

// NewMetrics registers the task collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodorders_task_runs_total",
			Help: "Task runs by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foodorders_task_duration_seconds",
			Help:    "Task run duration by task type.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foodorders_tasks_running",
			Help: "Task runs currently in progress.",
		}, []string{"task"}),
	}
	reg.MustRegister(m.runs, m.duration, m.running)
	return m
}

// Run is one execution of a task.
type Run struct {
	m     *Metrics
	task  string
	start time.Time
}

// Begin marks the start of a run of task.
func (m *Metrics) Begin(task string) *Run {
	if m != nil {
		m.running.WithLabelValues(task).Inc()
	}
	return &Run{m: m, task: task, start: time.Now()}
}

// Finish records the outcome of err and returns err unchanged.
func (r *Run) Finish(err error) error {
	if r == nil || r.m == nil {
		return err
	}
	r.m.running.WithLabelValues(r.task).Dec()
	r.m.duration.WithLabelValues(r.task).Observe(time.Since(r.start).Seconds())
	r.m.runs.WithLabelValues(r.task, Outcome(err)).Inc()
	return err
}

// Outcome classifies a handler result. Errors wrapping asynq.SkipRetry are
// dropped, other errors are retried by the server.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeDropped
	default:
		return OutcomeRetry
	}
}
