package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "banyan"

// Metrics are the per-execution counters a worker pool updates.
type Metrics struct {
	TasksStartedTotal   *prometheus.CounterVec
	TasksCompletedTotal *prometheus.CounterVec
	TasksFailedTotal    *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec
}

// NewMetrics registers the execution metrics on reg. Registering twice on the
// same registerer reuses the collectors already there.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		TasksStartedTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_started_total",
				Help:      "Tasks claimed and started by workers.",
			},
			[]string{"task", "queue"},
		)),
		TasksCompletedTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Tasks completed successfully.",
			},
			[]string{"task", "queue"},
		)),
		TasksFailedTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_failed_total",
				Help:      "Tasks that did not complete, by failure kind.",
			},
			[]string{"task", "queue", "reason"},
		)),
		TaskDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Task execution duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Started counts a claimed execution.
func (m *Metrics) Started(task, queue string) {
	m.TasksStartedTotal.WithLabelValues(task, queue).Inc()
}

// Finished records the outcome and duration of one execution. An empty
// reason means success.
func (m *Metrics) Finished(task, queue, reason string, d time.Duration) {
	if reason == "" {
		m.TasksCompletedTotal.WithLabelValues(task, queue).Inc()
	} else {
		m.TasksFailedTotal.WithLabelValues(task, queue, reason).Inc()
	}
	m.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// StateCollector exposes per-state record counts, read from the store on
// every scrape.
type StateCollector struct {
	fetch   func(context.Context) (map[string]int64, error)
	desc    *prometheus.Desc
	timeout time.Duration
}

// NewStateCollector builds a collector over fetch.
func NewStateCollector(fetch func(context.Context) (map[string]int64, error)) *StateCollector {
	return &StateCollector{
		fetch: fetch,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tasks"),
			"Number of task records per state.",
			[]string{"state"}, nil,
		),
		timeout: 5 * time.Second,
	}
}

func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	counts, err := c.fetch(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state)
	}
}
