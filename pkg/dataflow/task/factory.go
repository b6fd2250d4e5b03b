package task

import (
	"github.com/grafana/dataflow/pkg/dataflow/dag"
	"github.com/grafana/dataflow/pkg/dataflow/job"
)

// Factory creates task processors. Each task is structured as
//
//	Producers -> Transformation -> Consumers
//
// and receives one of four processor variants depending on whether it has
// producers, consumers, both, or neither. The specialized constructors can
// be called directly when the topology is known; [Factory.GetTaskProcessor]
// selects the constructor from the sizes of the producer and consumer sets.
//
// All constructors return a [*ProtocolViolation] when the arguments do not
// fit the variant or the vertex's declared edges.
type Factory[T any] struct{}

// NewFactory returns a new Factory.
func NewFactory[T any]() *Factory[T] { return &Factory[T]{} }

// SimpleTaskProcessor constructs a processor for a task without producers or
// consumers.
func (f *Factory[T]) SimpleTaskProcessor(
	transformation Transformation[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	vertex *dag.Vertex,
	taskID int,
) (*Processor[T], error) {
	return newProcessor[T](KindSimple, nil, nil, transformation, jobCtx, procCtx, vertex, taskID)
}

// ConsumerTaskProcessor constructs a processor for a task with consumers but
// without producers.
func (f *Factory[T]) ConsumerTaskProcessor(
	consumers []Consumer[T],
	transformation Transformation[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	vertex *dag.Vertex,
	taskID int,
) (*Processor[T], error) {
	return newProcessor(KindConsumer, nil, consumers, transformation, jobCtx, procCtx, vertex, taskID)
}

// ProducerTaskProcessor constructs a processor for a task with producers but
// without consumers.
func (f *Factory[T]) ProducerTaskProcessor(
	producers []Producer[T],
	transformation Transformation[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	vertex *dag.Vertex,
	taskID int,
) (*Processor[T], error) {
	return newProcessor(KindProducer, producers, nil, transformation, jobCtx, procCtx, vertex, taskID)
}

// ActorTaskProcessor constructs a processor for a task with both producers
// and consumers.
func (f *Factory[T]) ActorTaskProcessor(
	producers []Producer[T],
	consumers []Consumer[T],
	transformation Transformation[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	vertex *dag.Vertex,
	taskID int,
) (*Processor[T], error) {
	return newProcessor(KindActor, producers, consumers, transformation, jobCtx, procCtx, vertex, taskID)
}

// GetTaskProcessor determines the processor variant from the number of
// producers and consumers and delegates to the matching constructor.
func (f *Factory[T]) GetTaskProcessor(
	producers []Producer[T],
	consumers []Consumer[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	transformation Transformation[T],
	vertex *dag.Vertex,
	taskID int,
) (*Processor[T], error) {
	switch KindFor(len(producers), len(consumers)) {
	case KindSimple:
		return f.SimpleTaskProcessor(transformation, jobCtx, procCtx, vertex, taskID)
	case KindConsumer:
		return f.ConsumerTaskProcessor(consumers, transformation, jobCtx, procCtx, vertex, taskID)
	case KindProducer:
		return f.ProducerTaskProcessor(producers, transformation, jobCtx, procCtx, vertex, taskID)
	default:
		return f.ActorTaskProcessor(producers, consumers, transformation, jobCtx, procCtx, vertex, taskID)
	}
}
