package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for a runner.
type metrics struct {
	// registry to collect metrics as a unit.
	reg *prometheus.Registry

	tasksTotal     *prometheus.CounterVec
	stepsTotal     *prometheus.CounterVec
	backoffsTotal  prometheus.Counter
	executionsLive prometheus.Gauge
	threads        *prometheus.GaugeVec

	taskExecSeconds prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()

	return &metrics{
		reg: reg,

		tasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_runner_tasks_total",
			Help: "Total number of tasks by terminal state",
		}, []string{"state"}),
		stepsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_runner_steps_total",
			Help: "Total number of task steps by result",
		}, []string{"result"}),
		backoffsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dataflow_runner_idle_backoffs_total",
			Help: "Total number of times a thread backed off because no task made progress",
		}),
		executionsLive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dataflow_runner_executions",
			Help: "Number of submitted executions which have not completed yet",
		}),
		threads: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dataflow_runner_threads",
			Help: "Number of runner threads by state",
		}, []string{"state"}),

		taskExecSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "dataflow_runner_task_exec_seconds",
			Help: "Number of seconds between the first step of a task and the step in which it completed",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}

// Register registers metrics to report to reg.
func (m *metrics) Register(reg prometheus.Registerer) error { return reg.Register(m.reg) }

// Unregister unregisters metrics from the provided Registerer.
func (m *metrics) Unregister(reg prometheus.Registerer) { reg.Unregister(m.reg) }
