package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

type threadState int

const (
	// threadStateIdle reports that a thread is not running.
	threadStateIdle threadState = iota

	// threadStateReady reports that a thread is waiting for a ready task.
	threadStateReady

	// threadStateBusy reports that a thread is currently stepping a task.
	threadStateBusy
)

func (s threadState) String() string {
	switch s {
	case threadStateIdle:
		return "idle"
	case threadStateReady:
		return "ready"
	case threadStateBusy:
		return "busy"
	default:
		return fmt.Sprintf("threadState(%d)", s)
	}
}

// scheduled is a task waiting in the ready queue.
type scheduled struct {
	task Task
	exec *Execution

	// ctx carries the values of the submitting context, such as the parent
	// span, but not its cancellation.
	ctx     context.Context
	span    trace.Span
	started time.Time // Zero until the task is first stepped.
}

// stepContext is canceled with the thread and carries the values of the
// submitting context, including the task's span.
type stepContext struct {
	context.Context
	values context.Context
}

func (c stepContext) Value(key any) any { return c.values.Value(key) }

// thread steps ready tasks, one at a time, until the ready queue is
// disposed.
type thread struct {
	ID     int
	Logger log.Logger
	Clock  quartz.Clock

	MinIdleBackoff time.Duration
	MaxIdleBackoff time.Duration

	Metrics *metrics
	Ready   *queue.Queue

	stateMut sync.RWMutex
	state    threadState
}

// State returns the current state of the thread.
func (t *thread) State() threadState {
	t.stateMut.RLock()
	defer t.stateMut.RUnlock()
	return t.state
}

// Run starts the thread. Run takes tasks from the ready queue and steps them
// in a loop until the ready queue is disposed. Non-terminal tasks are put
// back into the queue after each step.
func (t *thread) Run(ctx context.Context) error {
	defer t.setState(threadStateIdle)

	var (
		bo = backoff.New(ctx, backoff.Config{
			MinBackoff: t.MinIdleBackoff,
			MaxBackoff: t.MaxIdleBackoff,
		})

		// Consecutive steps of this thread without progress.
		idle int64
	)

	for {
		t.setState(threadStateReady)
		items, err := t.Ready.Get(1)
		if err != nil {
			return nil
		}

		t.setState(threadStateBusy)
		item := items[0].(*scheduled)

		switch t.step(ctx, item) {
		case task.ResultDone:
			idle = 0
			continue
		case task.ResultProgress:
			idle = 0
			bo.Reset()
		default:
			idle++
		}

		if err := t.Ready.Put(item); err != nil {
			return nil
		}

		// Every ready task was stepped without progress.
		if idle > t.Ready.Len() {
			level.Debug(t.Logger).Log("msg", "no progress, backing off", "thread", t.ID, "retries", bo.NumRetries())
			t.Metrics.backoffsTotal.Inc()
			bo.Wait()
			idle = 0
		}
	}
}

func (t *thread) setState(state threadState) {
	t.stateMut.Lock()
	defer t.stateMut.Unlock()

	t.Metrics.threads.WithLabelValues(t.state.String()).Dec()
	t.Metrics.threads.WithLabelValues(state.String()).Inc()
	t.state = state
}

// step runs one cycle of item and records its completion if the task
// reached a terminal state.
func (t *thread) step(ctx context.Context, item *scheduled) task.Result {
	logger := log.With(t.Logger, "execution", item.exec.ID(), "task", item.task)

	if item.started.IsZero() {
		item.started = t.Clock.Now()
		item.ctx, item.span = tracer.Start(item.ctx, "runner.task", trace.WithAttributes(
			attribute.Stringer("task", item.task),
			attribute.Stringer("execution", item.exec.ID()),
		))
		level.Debug(logger).Log("msg", "starting task")
	}

	res, err := item.task.Step(stepContext{Context: ctx, values: item.ctx})
	t.Metrics.stepsTotal.WithLabelValues(res.String()).Inc()

	if err != nil {
		item.span.RecordError(err)
		item.exec.fail(err)
	}
	if res != task.ResultDone {
		return res
	}

	var (
		state    = item.task.State()
		duration = t.Clock.Since(item.started)
	)
	t.Metrics.tasksTotal.WithLabelValues(state.String()).Inc()

	if state == task.StateFinished {
		level.Debug(logger).Log("msg", "task completed", "duration", duration)
		t.Metrics.taskExecSeconds.Observe(duration.Seconds())
		item.span.SetStatus(codes.Ok, "")
	} else {
		level.Warn(logger).Log("msg", "task failed", "duration", duration, "err", err)
		item.span.SetStatus(codes.Error, fmt.Sprint(err))
	}
	item.span.End()

	item.exec.taskDone()
	return res
}
