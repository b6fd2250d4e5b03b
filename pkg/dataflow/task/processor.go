package task

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/grafana/dataflow/pkg/dataflow/dag"
	"github.com/grafana/dataflow/pkg/dataflow/job"
)

type producerSlot[T any] struct {
	index     int // Position in the producer set the task was built with.
	producer  Producer[T]
	exhausted bool
}

// Processor drives the execution cycle of one task: it pulls chunks from
// producers, feeds them to the transformation, and pushes the
// transformation's output to consumers.
//
// The variant of the processor (see [Kind]) is fixed at construction and
// determines which phases run in each cycle. Processors are created by a
// [Factory].
//
// A Processor must be driven by one goroutine at a time. The query methods
// and [Processor.Cancel] are safe to call from any goroutine.
type Processor[T any] struct {
	kind   Kind
	taskID int
	vertex *dag.Vertex

	jobCtx  *job.Context
	procCtx *job.ProcessorContext
	logger  log.Logger

	transformation Transformation[T]
	producers      []producerSlot[T] // Live producers, in polling order.
	consumers      []Consumer[T]

	inbox  Inbox[T]
	outbox *Outbox[T]

	// pending holds emitted chunks which have not been accepted by every
	// consumer yet. delivered[i] is the number of leading chunks of pending
	// accepted by consumer i, and pendingSeq is the sequence number of
	// pending[0] among all chunks emitted by the task.
	pending    []T
	delivered  []int
	pendingSeq int64

	nextProducer int
	nextConsumer int
	cycle        int64
	closed       bool

	state  atomic.Int32
	err    atomic.Error
	cancel atomic.Error
}

func newProcessor[T any](
	kind Kind,
	producers []Producer[T],
	consumers []Consumer[T],
	transformation Transformation[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	vertex *dag.Vertex,
	taskID int,
) (*Processor[T], error) {
	if err := validate(kind, producers, consumers, transformation, jobCtx, procCtx, vertex, taskID); err != nil {
		return nil, err
	}

	p := &Processor[T]{
		kind:   kind,
		taskID: taskID,
		vertex: vertex,

		jobCtx:  jobCtx,
		procCtx: procCtx,
		logger:  log.With(procCtx.Logger(), "task_id", taskID, "kind", kind),

		transformation: transformation,
		consumers:      slices.Clone(consumers),
		delivered:      make([]int, len(consumers)),

		outbox: newOutbox[T](jobCtx.Config().OutboxCapacity),
	}

	for i, producer := range producers {
		p.producers = append(p.producers, producerSlot[T]{index: i, producer: producer})
	}

	// Tasks without producers never receive input; their transformations
	// are driven by an exhausted, empty inbox.
	p.inbox.exhausted = len(producers) == 0

	p.state.Store(int32(StateReady))
	return p, nil
}

func validate[T any](
	kind Kind,
	producers []Producer[T],
	consumers []Consumer[T],
	transformation Transformation[T],
	jobCtx *job.Context,
	procCtx *job.ProcessorContext,
	vertex *dag.Vertex,
	taskID int,
) error {
	violation := func(format string, args ...any) error {
		name := "<nil>"
		if vertex != nil {
			name = vertex.Name()
		}
		return &ProtocolViolation{Vertex: name, TaskID: taskID, Reason: fmt.Sprintf(format, args...)}
	}

	switch {
	case vertex == nil:
		return violation("vertex is required")
	case transformation == nil:
		return violation("transformation is required")
	case jobCtx == nil:
		return violation("job context is required")
	case procCtx == nil:
		return violation("processor context is required")
	case jobCtx.Config().OutboxCapacity <= 0:
		return violation("outbox capacity must be greater than 0")
	}

	if got := KindFor(len(producers), len(consumers)); got != kind {
		return violation("%s processor cannot be built with %d producers and %d consumers", kind, len(producers), len(consumers))
	}
	if (vertex.Inputs() == 0) != (len(producers) == 0) {
		return violation("vertex declares %d inputs but task has %d producers", vertex.Inputs(), len(producers))
	}
	if (vertex.Outputs() == 0) != (len(consumers) == 0) {
		return violation("vertex declares %d outputs but task has %d consumers", vertex.Outputs(), len(consumers))
	}

	for i, producer := range producers {
		if producer == nil {
			return violation("producer %d is nil", i)
		}
	}
	for i, consumer := range consumers {
		if consumer == nil {
			return violation("consumer %d is nil", i)
		}
	}
	return nil
}

// Step executes one cycle of the task. Step never blocks waiting for
// producers or consumers.
//
// If the cycle fails, the processor moves to [StateFailed], the failure is
// reported to the job context, and the error is returned. Calling Step on a
// processor in a terminal state is a no-op which returns [ResultDone].
func (p *Processor[T]) Step(ctx context.Context) (Result, error) {
	switch p.State() {
	case StateFinished, StateFailed:
		return ResultDone, nil
	case StateReady:
		p.setState(StateProcessing)
		level.Debug(p.logger).Log("msg", "task started", "producers", len(p.producers), "consumers", len(p.consumers))
	}

	if err := p.canceled(ctx); err != nil {
		return ResultDone, p.fail(err)
	}

	p.cycle++
	p.jobCtx.Counters().Cycles.Inc()
	p.procCtx.Counters().Cycles.Inc()

	var (
		res Result
		err error
	)

	switch p.kind {
	case KindSimple:
		res, err = p.stepSimple(ctx)
	case KindConsumer:
		res, err = p.stepConsumer(ctx)
	case KindProducer:
		res, err = p.stepProducer(ctx)
	case KindActor:
		res, err = p.stepActor(ctx)
	default:
		err = fmt.Errorf("unknown processor kind %s", p.kind)
	}

	if err != nil {
		return ResultDone, p.fail(err)
	}
	return res, nil
}

func (p *Processor[T]) canceled(ctx context.Context) error {
	if cause := p.cancel.Load(); cause != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, cause)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
	}
	return nil
}

func (p *Processor[T]) fail(err error) error {
	// Chunks no consumer has accepted yet are never delivered.
	release(p.inbox.take())
	release(p.outbox.take())
	if len(p.pending) > 0 {
		release(p.pending[slices.Max(p.delivered):])
		p.pending = nil
	}

	p.err.Store(err)
	p.setState(StateFailed)
	p.jobCtx.Counters().Failed.Inc()
	p.procCtx.Counters().Failed.Inc()

	p.jobCtx.ReportFailure(job.Failure{
		TaskID: p.taskID,
		Vertex: p.vertex.Name(),
		Cycle:  p.cycle,
		Err:    err,
	})
	return err
}

// pull polls every live producer once, starting from a producer which
// rotates every cycle. Exhausted producers are removed from the set. Nothing
// is pulled while the inbox still holds unconsumed chunks.
func (p *Processor[T]) pull(ctx context.Context) (bool, error) {
	if len(p.producers) == 0 || p.inbox.Len() > 0 {
		return false, nil
	}

	var (
		progress  bool
		exhausted int
		n         = len(p.producers)
		start     = p.nextProducer % n
	)

	for i := range n {
		slot := &p.producers[(start+i)%n]

		chunk, status, err := slot.producer.Poll(ctx)
		if err != nil {
			return progress, &ProducerError{Producer: slot.index, Cycle: p.cycle, Err: err}
		}

		switch status {
		case PollEmpty:
		case PollData:
			p.inbox.push(chunk)
			p.jobCtx.Counters().Pulled.Inc()
			p.procCtx.Counters().Pulled.Inc()
			progress = true
		case PollExhausted:
			slot.exhausted = true
			exhausted++
			progress = true
		default:
			return progress, &ProducerError{Producer: slot.index, Cycle: p.cycle, Err: fmt.Errorf("unknown poll status %s", status)}
		}
	}

	if exhausted == 0 {
		p.nextProducer = (start + 1) % n
		return progress, nil
	}

	// The next cycle starts at the first live producer after start.
	next := -1
	for i := 1; i <= n; i++ {
		if slot := p.producers[(start+i)%n]; !slot.exhausted {
			next = slot.index
			break
		}
	}

	p.producers = slices.DeleteFunc(p.producers, func(s producerSlot[T]) bool { return s.exhausted })
	p.nextProducer = max(slices.IndexFunc(p.producers, func(s producerSlot[T]) bool { return s.index == next }), 0)
	level.Debug(p.logger).Log("msg", "producers exhausted", "exhausted", exhausted, "remaining", len(p.producers))

	if len(p.producers) == 0 {
		p.inbox.exhausted = true
	}
	return progress, nil
}

// process invokes the transformation if there is input for it, or if no
// further input will arrive. Once the transformation has finished, pulled
// chunks are dropped so that upstream tasks can still drain.
func (p *Processor[T]) process(ctx context.Context) (bool, error) {
	if p.transformation.Finished() {
		dropped := p.inbox.take()
		release(dropped)

		n := len(dropped)
		p.jobCtx.Counters().Dropped.Add(int64(n))
		p.procCtx.Counters().Dropped.Add(int64(n))
		return n > 0, nil
	}
	if p.inbox.Len() == 0 && !p.inbox.Exhausted() {
		return false, nil
	}

	before := p.inbox.Len()
	if err := p.transformation.Process(ctx, &p.inbox, p.outbox); err != nil {
		return false, &TransformationError{Cycle: p.cycle, Err: err}
	}

	emitted := p.outbox.Len()
	p.jobCtx.Counters().Emitted.Add(int64(emitted))
	p.procCtx.Counters().Emitted.Add(int64(emitted))

	return emitted > 0 || p.inbox.Len() < before || p.transformation.Finished(), nil
}

// push offers pending output to every consumer, starting from a consumer
// which rotates every cycle. Each consumer receives chunks in emission order;
// a consumer applying backpressure keeps its remaining chunks pending while
// other consumers continue to receive theirs.
//
// push reports whether any chunk was accepted and whether output remains
// pending.
func (p *Processor[T]) push(ctx context.Context) (progress, blocked bool, err error) {
	p.pending = append(p.pending, p.outbox.take()...)
	if len(p.pending) == 0 {
		return false, false, nil
	}

	var (
		n     = len(p.consumers)
		start = p.nextConsumer % n
	)
	p.nextConsumer = (start + 1) % n

	for i := range n {
		idx := (start + i) % n

		for p.delivered[idx] < len(p.pending) {
			ok, err := p.consumers[idx].Offer(ctx, p.pending[p.delivered[idx]])
			if err != nil {
				seq := p.pendingSeq + int64(p.delivered[idx])
				return progress, true, &ConsumerError{Consumer: idx, Chunk: seq, Cycle: p.cycle, Err: err}
			} else if !ok {
				p.jobCtx.Counters().Backpressure.Inc()
				p.procCtx.Counters().Backpressure.Inc()
				break
			}

			p.delivered[idx]++
			p.jobCtx.Counters().Pushed.Inc()
			p.procCtx.Counters().Pushed.Inc()
			progress = true
		}
	}

	// Release chunks which every consumer has accepted.
	if done := slices.Min(p.delivered); done > 0 {
		clear(p.pending[:done])
		p.pending = p.pending[done:]
		p.pendingSeq += int64(done)
		for i := range p.delivered {
			p.delivered[i] -= done
		}
	}
	if len(p.pending) == 0 {
		p.pending = nil
	}
	return progress, len(p.pending) > 0, nil
}

// resume pushes output left over from a previous cycle.
func (p *Processor[T]) resume(ctx context.Context) (progress, blocked bool, err error) {
	if len(p.pending) == 0 {
		return false, false, nil
	}
	return p.push(ctx)
}

// discard drops the output of tasks without consumers.
func (p *Processor[T]) discard() {
	release(p.outbox.take())
}

// complete updates the lifecycle state at the end of a cycle. The task
// finishes once all producers are exhausted, the transformation has
// finished, all output has been flushed, and every consumer acknowledged
// completion.
func (p *Processor[T]) complete(ctx context.Context, progress bool) (Result, error) {
	var (
		inputDone = len(p.producers) == 0 && p.inbox.Len() == 0
		finished  = p.transformation.Finished()
	)

	// Tasks without producers have no input to exhaust; they only start
	// finalizing once the transformation finished.
	if p.State() == StateProcessing && (finished || (inputDone && p.kind.hasProducers())) {
		p.setState(StateFinalizing)
		level.Debug(p.logger).Log("msg", "task finalizing", "input_done", inputDone, "transformation_finished", finished)
	}
	if !inputDone || !finished || len(p.pending) > 0 {
		return resultFor(progress), nil
	}

	if !p.closed {
		for i, consumer := range p.consumers {
			if err := consumer.Close(ctx); err != nil {
				return ResultIdle, &ConsumerError{Consumer: i, Chunk: -1, Cycle: p.cycle, Err: err}
			}
		}
		p.closed = true
		progress = true
	}

	for _, consumer := range p.consumers {
		if !consumer.Finished() {
			return resultFor(progress), nil
		}
	}

	p.setState(StateFinished)
	p.jobCtx.Counters().Finished.Inc()
	p.procCtx.Counters().Finished.Inc()
	level.Debug(p.logger).Log("msg", "task finished", "cycles", p.cycle)
	return ResultDone, nil
}

func resultFor(progress bool) Result {
	if progress {
		return ResultProgress
	}
	return ResultIdle
}

// Cancel requests the processor to stop. The processor moves to
// [StateFailed] with an error wrapping [ErrCanceled] and cause at the start
// of its next cycle; a cycle in progress is not interrupted.
func (p *Processor[T]) Cancel(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	p.cancel.Store(cause)
}

func (p *Processor[T]) setState(s State) { p.state.Store(int32(s)) }

// State returns the current lifecycle state.
func (p *Processor[T]) State() State { return State(p.state.Load()) }

// Finished returns true if the processor completed successfully.
func (p *Processor[T]) Finished() bool { return p.State() == StateFinished }

// Failed returns true if the processor stopped because of an error.
func (p *Processor[T]) Failed() bool { return p.State() == StateFailed }

// Err returns the cause of failure, or nil if the processor has not failed.
func (p *Processor[T]) Err() error { return p.err.Load() }

// Kind returns the processor variant.
func (p *Processor[T]) Kind() Kind { return p.kind }

// TaskID returns the ID of the task, unique within its vertex.
func (p *Processor[T]) TaskID() int { return p.taskID }

// Vertex returns the vertex the task belongs to.
func (p *Processor[T]) Vertex() *dag.Vertex { return p.vertex }

// ProcessorContext returns the per-task context.
func (p *Processor[T]) ProcessorContext() *job.ProcessorContext { return p.procCtx }

func (p *Processor[T]) String() string {
	return fmt.Sprintf("%s/%d", p.vertex.Name(), p.taskID)
}
