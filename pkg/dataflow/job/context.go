// Package job holds the state shared by the tasks of a dataflow job.
package job

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
)

// Failure describes the terminal failure of a single task.
type Failure struct {
	TaskID int    // ID of the task, unique within its vertex.
	Vertex string // Name of the vertex the task belongs to.
	Cycle  int64  // Task cycle during which the failure happened.
	Err    error  // Cause of the failure. Never nil.
}

func (f Failure) Error() string {
	return fmt.Sprintf("task %s/%d failed in cycle %d: %v", f.Vertex, f.TaskID, f.Cycle, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Params holds parameters for constructing a new [Context].
type Params struct {
	Name   string     // Name of the job, used for logging.
	Config Config     // Config shared by all tasks.
	Logger log.Logger // Logger for optional log messages.

	// OnFailure is invoked once for every task that fails. OnFailure may be
	// called concurrently from multiple tasks.
	OnFailure func(Failure)
}

// Context is the process-wide state shared by all tasks of one job. Tasks
// hold a non-owning reference to it.
//
// Context is read-mostly: counters are updated atomically, and only the
// failure path takes a lock.
type Context struct {
	id     ulid.ULID
	name   string
	config Config
	logger log.Logger

	counters  Counters
	onFailure func(Failure)

	failuresMut sync.Mutex
	failures    []Failure
}

// NewContext creates a new job Context with a fresh ID.
func NewContext(p Params) *Context {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}

	id := ulid.Make()
	return &Context{
		id:        id,
		name:      p.Name,
		config:    p.Config,
		logger:    log.With(p.Logger, "job", p.Name, "job_id", id),
		onFailure: p.OnFailure,
	}
}

// ID returns the unique ID of the job.
func (c *Context) ID() ulid.ULID { return c.id }

// Name returns the name of the job.
func (c *Context) Name() string { return c.name }

// Config returns the job configuration.
func (c *Context) Config() Config { return c.config }

// Logger returns the job logger.
func (c *Context) Logger() log.Logger { return c.logger }

// Counters returns the job-wide counters.
func (c *Context) Counters() *Counters { return &c.counters }

// ReportFailure records the failure of a task and invokes the OnFailure hook.
// Failures with a nil cause are rejected, since every failure must carry a
// reason.
func (c *Context) ReportFailure(f Failure) {
	if f.Err == nil {
		f.Err = errors.New("task failed without a cause")
	}

	c.failuresMut.Lock()
	c.failures = append(c.failures, f)
	c.failuresMut.Unlock()

	level.Error(c.logger).Log("msg", "task failed", "vertex", f.Vertex, "task_id", f.TaskID, "cycle", f.Cycle, "err", f.Err)

	if c.onFailure != nil {
		c.onFailure(f)
	}
}

// Failures returns all failures reported so far, in the order they were
// reported.
func (c *Context) Failures() []Failure {
	c.failuresMut.Lock()
	defer c.failuresMut.Unlock()
	return append([]Failure(nil), c.failures...)
}

// Err returns the joined errors of all reported failures, or nil if no task
// has failed.
func (c *Context) Err() error {
	failures := c.Failures()
	if len(failures) == 0 {
		return nil
	}

	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
