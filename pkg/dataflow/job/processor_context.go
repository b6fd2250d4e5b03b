package job

import (
	"fmt"

	"github.com/go-kit/log"
)

// ProcessorContext is per-task metadata. It is created when a task is
// instantiated and passed through to the task unchanged.
type ProcessorContext struct {
	vertex      string
	index       int
	parallelism int
	logger      log.Logger
	counters    Counters
}

// NewProcessorContext returns a ProcessorContext for the task at the given
// parallelism index of vertex.
func NewProcessorContext(jobCtx *Context, vertex string, index, parallelism int) *ProcessorContext {
	logger := log.NewNopLogger()
	if jobCtx != nil {
		logger = jobCtx.Logger()
	}

	return &ProcessorContext{
		vertex:      vertex,
		index:       index,
		parallelism: parallelism,
		logger:      log.With(logger, "vertex", vertex, "index", index),
	}
}

// Vertex returns the name of the vertex the task belongs to.
func (pc *ProcessorContext) Vertex() string { return pc.vertex }

// Index returns the parallelism index of the task within its vertex.
func (pc *ProcessorContext) Index() int { return pc.index }

// Parallelism returns the total number of tasks of the vertex.
func (pc *ProcessorContext) Parallelism() int { return pc.parallelism }

// Logger returns a logger annotated with the task identity.
func (pc *ProcessorContext) Logger() log.Logger { return pc.logger }

// Counters returns counters local to the task.
func (pc *ProcessorContext) Counters() *Counters { return &pc.counters }

func (pc *ProcessorContext) String() string {
	return fmt.Sprintf("%s[%d/%d]", pc.vertex, pc.index, pc.parallelism)
}
