package task

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/dataflow/pkg/dataflow/dag"
)

func TestKindFor(t *testing.T) {
	tt := []struct {
		producers, consumers int
		expect               Kind
	}{
		{0, 0, KindSimple},
		{0, 1, KindConsumer},
		{0, 3, KindConsumer},
		{1, 0, KindProducer},
		{3, 0, KindProducer},
		{1, 1, KindActor},
		{3, 3, KindActor},
	}

	for _, tc := range tt {
		t.Run(fmt.Sprintf("%d producers %d consumers", tc.producers, tc.consumers), func(t *testing.T) {
			require.Equal(t, tc.expect, KindFor(tc.producers, tc.consumers))
		})
	}
}

// topology holds freshly constructed collaborators for a task with the
// given number of producers and consumers. Two topologies built with the
// same sizes behave identically.
type topology struct {
	producers []*scriptedProducer
	consumers []*collector
	tr        Transformation[int]
}

func newTopology(producers, consumers int) *topology {
	topo := &topology{}
	for i := range producers {
		base := (i + 1) * 100
		topo.producers = append(topo.producers, produce(data(base+1), empty, data(base+2), data(base+3), exhausted))
	}
	for i := range consumers {
		topo.consumers = append(topo.consumers, &collector{rejectFirst: i})
	}

	if producers > 0 {
		topo.tr = &identity{}
	} else {
		topo.tr = &generator{n: 5, perCall: 2}
	}
	return topo
}

func (topo *topology) producerSet() []Producer[int] {
	if len(topo.producers) == 0 {
		return nil
	}
	return asProducers(topo.producers...)
}

func (topo *topology) consumerSet() []Consumer[int] {
	if len(topo.consumers) == 0 {
		return nil
	}
	return asConsumers(topo.consumers...)
}

func TestFactory_GetTaskProcessor(t *testing.T) {
	sizes := []int{0, 1, 3}

	for _, producers := range sizes {
		for _, consumers := range sizes {
			name := fmt.Sprintf("%d producers %d consumers", producers, consumers)

			t.Run(name, func(t *testing.T) {
				var (
					env     = newTestEnv(t, 16)
					factory = NewFactory[int]()
					vertex  = vertexFor("v", producers, consumers)
				)

				dispatched := newTopology(producers, consumers)
				viaDispatch, err := factory.GetTaskProcessor(dispatched.producerSet(), dispatched.consumerSet(), env.jobCtx, env.procCtx("v"), dispatched.tr, vertex, 0)
				require.NoError(t, err)

				direct := newTopology(producers, consumers)
				var viaConstructor *Processor[int]
				switch KindFor(producers, consumers) {
				case KindSimple:
					viaConstructor, err = factory.SimpleTaskProcessor(direct.tr, env.jobCtx, env.procCtx("v"), vertex, 1)
				case KindConsumer:
					viaConstructor, err = factory.ConsumerTaskProcessor(direct.consumerSet(), direct.tr, env.jobCtx, env.procCtx("v"), vertex, 1)
				case KindProducer:
					viaConstructor, err = factory.ProducerTaskProcessor(direct.producerSet(), direct.tr, env.jobCtx, env.procCtx("v"), vertex, 1)
				case KindActor:
					viaConstructor, err = factory.ActorTaskProcessor(direct.producerSet(), direct.consumerSet(), direct.tr, env.jobCtx, env.procCtx("v"), vertex, 1)
				}
				require.NoError(t, err)

				require.Equal(t, KindFor(producers, consumers), viaDispatch.Kind())
				require.Equal(t, viaConstructor.Kind(), viaDispatch.Kind())

				// Both processors must take the same path to completion.
				for step := 0; ; step++ {
					require.Less(t, step, 100, "processors did not terminate")

					resA, errA := viaDispatch.Step(t.Context())
					resB, errB := viaConstructor.Step(t.Context())
					require.NoError(t, errA)
					require.NoError(t, errB)
					require.Equal(t, resB, resA, "step %d", step)
					require.Equal(t, viaConstructor.State(), viaDispatch.State(), "step %d", step)

					if resA == ResultDone {
						break
					}
				}

				require.Equal(t, StateFinished, viaDispatch.State())
				for i := range dispatched.consumers {
					require.Equal(t, direct.consumers[i].chunks, dispatched.consumers[i].chunks)
					require.True(t, dispatched.consumers[i].closed)
				}
				for i := range dispatched.producers {
					require.Equal(t, direct.producers[i].polls, dispatched.producers[i].polls)
				}
				require.Empty(t, env.failures)
			})
		}
	}
}

func TestFactory_ProtocolViolation(t *testing.T) {
	var (
		env     = newTestEnv(t, 16)
		factory = NewFactory[int]()
		pctx    = env.procCtx("v")
	)

	tt := []struct {
		name  string
		build func() (*Processor[int], error)
	}{
		{
			name: "nil vertex",
			build: func() (*Processor[int], error) {
				return factory.SimpleTaskProcessor(&countdown{n: 1}, env.jobCtx, pctx, nil, 0)
			},
		},
		{
			name: "nil transformation",
			build: func() (*Processor[int], error) {
				return factory.SimpleTaskProcessor(nil, env.jobCtx, pctx, dag.NewVertex("v", 0, 0), 0)
			},
		},
		{
			name: "nil job context",
			build: func() (*Processor[int], error) {
				return factory.SimpleTaskProcessor(&countdown{n: 1}, nil, pctx, dag.NewVertex("v", 0, 0), 0)
			},
		},
		{
			name: "consumer processor without consumers",
			build: func() (*Processor[int], error) {
				return factory.ConsumerTaskProcessor(nil, &generator{n: 1, perCall: 1}, env.jobCtx, pctx, dag.NewVertex("v", 0, 1), 0)
			},
		},
		{
			name: "producer processor without producers",
			build: func() (*Processor[int], error) {
				return factory.ProducerTaskProcessor(nil, &identity{}, env.jobCtx, pctx, dag.NewVertex("v", 1, 0), 0)
			},
		},
		{
			name: "actor processor without consumers",
			build: func() (*Processor[int], error) {
				return factory.ActorTaskProcessor(asProducers(produce()), nil, &identity{}, env.jobCtx, pctx, dag.NewVertex("v", 1, 1), 0)
			},
		},
		{
			name: "vertex declares inputs but task has no producers",
			build: func() (*Processor[int], error) {
				return factory.GetTaskProcessor(nil, asConsumers(&collector{}), env.jobCtx, pctx, &generator{n: 1, perCall: 1}, dag.NewVertex("v", 1, 1), 0)
			},
		},
		{
			name: "vertex declares no outputs but task has consumers",
			build: func() (*Processor[int], error) {
				return factory.GetTaskProcessor(asProducers(produce()), asConsumers(&collector{}), env.jobCtx, pctx, &identity{}, dag.NewVertex("v", 1, 0), 0)
			},
		},
		{
			name: "nil producer",
			build: func() (*Processor[int], error) {
				return factory.GetTaskProcessor([]Producer[int]{nil}, nil, env.jobCtx, pctx, &identity{}, dag.NewVertex("v", 1, 0), 0)
			},
		},
		{
			name: "nil consumer",
			build: func() (*Processor[int], error) {
				return factory.GetTaskProcessor(nil, []Consumer[int]{nil}, env.jobCtx, pctx, &generator{n: 1, perCall: 1}, dag.NewVertex("v", 0, 1), 0)
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			p, err := tc.build()
			require.Nil(t, p)

			var violation *ProtocolViolation
			require.True(t, errors.As(err, &violation), "expected protocol violation, got %v", err)
			require.NotEmpty(t, violation.Reason)
		})
	}

	t.Run("Zero outbox capacity", func(t *testing.T) {
		env := newTestEnv(t, 0)
		_, err := factory.SimpleTaskProcessor(&countdown{n: 1}, env.jobCtx, env.procCtx("v"), dag.NewVertex("v", 0, 0), 0)

		var violation *ProtocolViolation
		require.ErrorAs(t, err, &violation)
	})
}
