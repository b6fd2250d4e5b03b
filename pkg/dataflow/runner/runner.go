// Package runner drives dataflow tasks on a pool of worker threads.
//
// Tasks never block: a thread steps a task once and puts it back into the
// ready queue unless the task reached a terminal state. Threads back off when
// a sweep over the ready tasks made no progress.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("pkg/dataflow/runner")

// ErrStopped is the error of executions which had not completed when the
// runner stopped.
var ErrStopped = errors.New("runner stopped")

// Runner is a service which runs submitted tasks until they reach a terminal
// state.
type Runner struct {
	services.Service

	cfg     Config
	logger  log.Logger
	reg     prometheus.Registerer
	metrics *metrics
	clock   quartz.Clock

	ready   *queue.Queue
	threads []*thread

	execsMtx sync.Mutex
	execs    map[*Execution]struct{}
}

// New creates a new Runner. Metrics are registered to reg if it is not nil.
func New(cfg Config, logger log.Logger, reg prometheus.Registerer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runner config: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	r := &Runner{
		cfg:     cfg,
		logger:  log.With(logger, "component", "runner"),
		reg:     reg,
		metrics: newMetrics(),
		clock:   quartz.NewReal(),

		ready: queue.New(int64(cfg.Workers)),
		execs: make(map[*Execution]struct{}),
	}

	if reg != nil {
		if err := r.metrics.Register(reg); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)
	return r, nil
}

func (r *Runner) starting(_ context.Context) error {
	for i := range r.cfg.Workers {
		r.threads = append(r.threads, &thread{
			ID:     i,
			Logger: r.logger,
			Clock:  r.clock,

			MinIdleBackoff: r.cfg.MinIdleBackoff,
			MaxIdleBackoff: r.cfg.MaxIdleBackoff,

			Metrics: r.metrics,
			Ready:   r.ready,
		})
	}
	r.metrics.threads.WithLabelValues(threadStateIdle.String()).Add(float64(len(r.threads)))
	return nil
}

func (r *Runner) running(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Disposing the queue releases threads waiting for a ready task.
	stop := context.AfterFunc(ctx, func() { r.ready.Dispose() })
	defer stop()

	for _, t := range r.threads {
		g.Go(func() error { return t.Run(ctx) })
	}

	level.Info(r.logger).Log("msg", "runner started", "workers", len(r.threads))
	return g.Wait()
}

func (r *Runner) stopping(_ error) error {
	r.ready.Dispose()

	r.execsMtx.Lock()
	pending := make([]*Execution, 0, len(r.execs))
	for e := range r.execs {
		pending = append(pending, e)
	}
	r.execsMtx.Unlock()

	for _, e := range pending {
		e.Cancel(ErrStopped)
		e.complete(ErrStopped)
	}

	if r.reg != nil {
		r.metrics.Unregister(r.reg)
	}
	level.Info(r.logger).Log("msg", "runner stopped", "aborted_executions", len(pending))
	return nil
}

// Submit schedules tasks for execution. The returned [Execution] completes
// once every task reached a terminal state. If a task fails, all other tasks
// of the execution are canceled.
//
// Canceling ctx cancels the execution.
func (r *Runner) Submit(ctx context.Context, tasks ...Task) (*Execution, error) {
	if state := r.State(); state != services.Running {
		return nil, fmt.Errorf("runner is not running: %s", state)
	} else if len(tasks) == 0 {
		return nil, errors.New("no tasks to run")
	}

	e := newExecution(slices.Clone(tasks), r.clock, r.executionDone)

	r.execsMtx.Lock()
	r.execs[e] = struct{}{}
	r.execsMtx.Unlock()
	r.metrics.executionsLive.Inc()

	e.watch(ctx)

	items := make([]any, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, &scheduled{task: t, exec: e, ctx: context.WithoutCancel(ctx)})
	}
	if err := r.ready.Put(items...); err != nil {
		e.complete(ErrStopped)
		return nil, ErrStopped
	}

	level.Debug(r.logger).Log("msg", "execution submitted", "execution", e.ID(), "tasks", len(tasks))
	return e, nil
}

func (r *Runner) executionDone(e *Execution) {
	r.execsMtx.Lock()
	delete(r.execs, e)
	r.execsMtx.Unlock()
	r.metrics.executionsLive.Dec()

	if err := e.Err(); err != nil {
		level.Warn(r.logger).Log("msg", "execution failed", "execution", e.ID(), "duration", e.Duration(), "err", err)
		return
	}
	level.Info(r.logger).Log("msg", "execution completed", "execution", e.ID(), "tasks", len(e.Tasks()), "duration", e.Duration())
}

// Pending returns the number of tasks waiting in the ready queue.
func (r *Runner) Pending() int { return int(r.ready.Len()) }
