package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/dataflow/pkg/dataflow/dag"
	"github.com/grafana/dataflow/pkg/dataflow/job"
)

type pollEvent struct {
	status PollStatus
	value  int
	err    error
}

func data(v int) pollEvent { return pollEvent{status: PollData, value: v} }

var (
	empty     = pollEvent{status: PollEmpty}
	exhausted = pollEvent{status: PollExhausted}
)

// scriptedProducer returns a fixed sequence of poll events, and reports
// exhausted once the script runs out.
type scriptedProducer struct {
	events []pollEvent
	polls  int
}

func produce(events ...pollEvent) *scriptedProducer {
	return &scriptedProducer{events: events}
}

func (p *scriptedProducer) Poll(context.Context) (int, PollStatus, error) {
	p.polls++
	if len(p.events) == 0 {
		return 0, PollExhausted, nil
	}

	ev := p.events[0]
	p.events = p.events[1:]
	return ev.value, ev.status, ev.err
}

// collector accepts chunks, optionally refusing the first rejectFirst offers
// of every chunk.
type collector struct {
	rejectFirst int
	blocked     bool
	offerErr    error
	closeErr    error

	refusals int
	offers   int
	chunks   []int
	closed   bool
}

func (c *collector) Offer(_ context.Context, chunk int) (bool, error) {
	c.offers++
	switch {
	case c.offerErr != nil:
		return false, c.offerErr
	case c.blocked:
		return false, nil
	case c.refusals < c.rejectFirst:
		c.refusals++
		return false, nil
	}

	c.refusals = 0
	c.chunks = append(c.chunks, chunk)
	return true, nil
}

func (c *collector) Close(context.Context) error {
	if c.closeErr != nil {
		return c.closeErr
	}
	c.closed = true
	return nil
}

func (c *collector) Finished() bool { return c.closed }

// identity forwards every input chunk and finishes once input is exhausted.
// It records the chunks it consumed in each invocation.
type identity struct {
	inputs [][]int
	done   bool
}

func (tr *identity) Process(_ context.Context, in *Inbox[int], out *Outbox[int]) error {
	var seen []int
	for in.Len() > 0 {
		chunk, _ := in.Peek()
		if !out.Offer(chunk) {
			break
		}
		in.Pop()
		seen = append(seen, chunk)
	}
	tr.inputs = append(tr.inputs, seen)
	tr.done = in.Exhausted() && in.Len() == 0
	return nil
}

func (tr *identity) Finished() bool { return tr.done }

func (tr *identity) consumed() []int {
	var all []int
	for _, in := range tr.inputs {
		all = append(all, in...)
	}
	return all
}

// generator emits the values [0, n), at most perCall per invocation.
type generator struct {
	n, perCall int
	next       int
}

func (tr *generator) Process(_ context.Context, _ *Inbox[int], out *Outbox[int]) error {
	for i := 0; i < tr.perCall && tr.next < tr.n; i++ {
		if !out.Offer(tr.next) {
			break
		}
		tr.next++
	}
	return nil
}

func (tr *generator) Finished() bool { return tr.next >= tr.n }

// countdown emits nothing and finishes after n invocations.
type countdown struct {
	n, calls int
}

func (tr *countdown) Process(context.Context, *Inbox[int], *Outbox[int]) error {
	tr.calls++
	return nil
}

func (tr *countdown) Finished() bool { return tr.calls >= tr.n }

// limit forwards the first n chunks and then finishes.
type limit struct {
	n     int
	taken []int
}

func (tr *limit) Process(_ context.Context, in *Inbox[int], out *Outbox[int]) error {
	for len(tr.taken) < tr.n && in.Len() > 0 && !out.Full() {
		chunk, _ := in.Pop()
		out.Offer(chunk)
		tr.taken = append(tr.taken, chunk)
	}
	return nil
}

func (tr *limit) Finished() bool { return len(tr.taken) >= tr.n }

// failing returns err from every invocation.
type failing struct {
	err error
}

func (tr *failing) Process(context.Context, *Inbox[int], *Outbox[int]) error { return tr.err }
func (tr *failing) Finished() bool                                           { return false }

type testEnv struct {
	jobCtx   *job.Context
	failures []job.Failure
}

func newTestEnv(t *testing.T, outboxCapacity int) *testEnv {
	t.Helper()

	env := &testEnv{}
	env.jobCtx = job.NewContext(job.Params{
		Name:      t.Name(),
		Config:    job.Config{OutboxCapacity: outboxCapacity},
		OnFailure: func(f job.Failure) { env.failures = append(env.failures, f) },
	})
	return env
}

func (env *testEnv) procCtx(vertex string) *job.ProcessorContext {
	return job.NewProcessorContext(env.jobCtx, vertex, 0, 1)
}

// vertexFor returns a vertex declaring edges that match the given producer
// and consumer counts.
func vertexFor(name string, producers, consumers int) *dag.Vertex {
	return dag.NewVertex(name, min(producers, 1), min(consumers, 1))
}

func (env *testEnv) build(t *testing.T, producers []Producer[int], consumers []Consumer[int], tr Transformation[int]) *Processor[int] {
	t.Helper()

	vertex := vertexFor("test", len(producers), len(consumers))
	p, err := NewFactory[int]().GetTaskProcessor(producers, consumers, env.jobCtx, env.procCtx(vertex.Name()), tr, vertex, 0)
	require.NoError(t, err)
	return p
}

// run steps p until it reaches a terminal state, failing the test if that
// takes more than maxSteps cycles. run returns the number of steps taken.
func run(t *testing.T, p *Processor[int], maxSteps int) int {
	t.Helper()

	for i := 1; i <= maxSteps; i++ {
		res, _ := p.Step(t.Context())
		if res == ResultDone {
			return i
		}
	}
	require.FailNow(t, "processor did not terminate", "state %s after %d steps", p.State(), maxSteps)
	return 0
}

func asProducers[P Producer[int]](ps ...P) []Producer[int] {
	out := make([]Producer[int], 0, len(ps))
	for _, p := range ps {
		out = append(out, p)
	}
	return out
}

func asConsumers[C Consumer[int]](cs ...C) []Consumer[int] {
	out := make([]Consumer[int], 0, len(cs))
	for _, c := range cs {
		out = append(out, c)
	}
	return out
}
