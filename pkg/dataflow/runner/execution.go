package runner

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// Task is a unit of work driven by a [Runner]. [task.Processor] implements
// Task.
type Task interface {
	// Step runs one cycle of the task. Step returns [task.ResultDone] once
	// the task reached a terminal state.
	Step(ctx context.Context) (task.Result, error)

	// State returns the lifecycle state of the task.
	State() task.State

	// Cancel requests the task to stop at its next cycle.
	Cancel(cause error)

	String() string
}

// Execution tracks a set of tasks submitted together to a [Runner].
type Execution struct {
	id    ulid.ULID
	tasks []Task
	clock quartz.Clock

	remaining atomic.Int64
	start     time.Time

	mtx  sync.Mutex
	err  error
	end  time.Time
	done chan struct{}
	stop func() bool // Stops watching the submitting context.

	onDone func(*Execution)
}

func newExecution(tasks []Task, clock quartz.Clock, onDone func(*Execution)) *Execution {
	e := &Execution{
		id:     ulid.Make(),
		tasks:  tasks,
		clock:  clock,
		start:  clock.Now(),
		done:   make(chan struct{}),
		onDone: onDone,
	}
	e.remaining.Store(int64(len(tasks)))
	return e
}

// watch cancels the execution once ctx is done.
func (e *Execution) watch(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { e.Cancel(context.Cause(ctx)) })

	e.mtx.Lock()
	defer e.mtx.Unlock()

	select {
	case <-e.done:
		stop()
	default:
		e.stop = stop
	}
}

// ID returns the unique ID of the execution.
func (e *Execution) ID() ulid.ULID { return e.id }

// Wait blocks until every task of the execution reached a terminal state or
// ctx is canceled. Wait returns the error of the execution.
func (e *Execution) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-e.done:
		return e.Err()
	}
}

// Done returns a channel which is closed once the execution completed.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Cancel cancels every task of the execution. Tasks which already finished
// are unaffected.
func (e *Execution) Cancel(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	for _, t := range e.tasks {
		t.Cancel(cause)
	}
}

// Err returns the first error of the execution, or nil if no task failed.
func (e *Execution) Err() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.err
}

// Duration returns the time elapsed between submitting the execution and its
// completion. Duration returns the time elapsed so far if the execution has
// not completed yet.
func (e *Execution) Duration() time.Duration {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.end.IsZero() {
		return e.clock.Since(e.start)
	}
	return e.end.Sub(e.start)
}

// Tasks returns the tasks of the execution.
func (e *Execution) Tasks() []Task { return e.tasks }

// fail records err as the cause of the execution's failure and cancels all
// other tasks.
func (e *Execution) fail(err error) {
	e.mtx.Lock()
	first := e.err == nil
	if first {
		e.err = err
	}
	e.mtx.Unlock()

	if first {
		e.Cancel(err)
	}
}

// taskDone marks one task as terminal.
func (e *Execution) taskDone() {
	if e.remaining.Dec() == 0 {
		e.complete(nil)
	}
}

// complete closes the execution. err, if not nil, is recorded if no earlier
// error exists. complete is idempotent.
func (e *Execution) complete(err error) {
	e.mtx.Lock()
	select {
	case <-e.done:
		e.mtx.Unlock()
		return
	default:
	}

	if e.err == nil {
		e.err = err
	}
	e.end = e.clock.Now()
	if e.stop != nil {
		e.stop()
	}
	close(e.done)
	e.mtx.Unlock()

	if e.onDone != nil {
		e.onDone(e)
	}
}
