package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/dataflow/pkg/dataflow/dag"
	"github.com/grafana/dataflow/pkg/dataflow/job"
	"github.com/grafana/dataflow/pkg/dataflow/stream"
	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// runTask runs tr as an actor task between a producer over input and a
// collector, and returns what reached the collector.
func runTask(t *testing.T, input []int, tr task.Transformation[int]) ([]int, error) {
	t.Helper()

	var (
		jobCtx  = job.NewContext(job.Params{Name: t.Name(), Config: job.Config{OutboxCapacity: 2}})
		procCtx = job.NewProcessorContext(jobCtx, "v", 0, 1)
		sink    = &stream.Collector[int]{}
	)

	var producers []task.Producer[int]
	inputs := 0
	if input != nil {
		producers = append(producers, stream.NewSliceProducer(input...))
		inputs = 1
	}

	p, err := task.NewFactory[int]().GetTaskProcessor(producers, []task.Consumer[int]{sink}, jobCtx, procCtx, tr, dag.NewVertex("v", inputs, 1), 0)
	require.NoError(t, err)

	for range 1000 {
		res, err := p.Step(t.Context())
		if err != nil {
			return sink.Items(), err
		}
		if res == task.ResultDone {
			return sink.Items(), nil
		}
	}
	require.FailNow(t, "task did not terminate")
	return nil, nil
}

func TestIdentity(t *testing.T) {
	out, err := runTask(t, []int{1, 2, 3, 4, 5}, &Identity[int]{})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, out)
}

func TestMap(t *testing.T) {
	t.Run("Applies function", func(t *testing.T) {
		tr := NewMap(func(_ context.Context, v int) (int, error) { return v * 10, nil })
		out, err := runTask(t, []int{1, 2, 3}, tr)
		require.NoError(t, err)
		require.Equal(t, []int{10, 20, 30}, out)
	})

	t.Run("Fails task on error", func(t *testing.T) {
		boom := errors.New("boom")
		tr := NewMap(func(_ context.Context, v int) (int, error) {
			if v == 2 {
				return 0, boom
			}
			return v, nil
		})

		_, err := runTask(t, []int{1, 2, 3}, tr)
		require.ErrorIs(t, err, boom)

		var terr *task.TransformationError
		require.ErrorAs(t, err, &terr)
	})
}

func TestFilter(t *testing.T) {
	tr := NewFilter(func(v int) bool { return v%2 == 0 })
	out, err := runTask(t, []int{1, 2, 3, 4, 5, 6}, tr)
	require.NoError(t, err)
	require.Equal(t, []int{2, 4, 6}, out)
}

func TestGenerator(t *testing.T) {
	t.Run("Emits items across cycles", func(t *testing.T) {
		out, err := runTask(t, nil, NewSliceGenerator(1, 2, 3, 4, 5))
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3, 4, 5}, out)
	})

	t.Run("Empty", func(t *testing.T) {
		out, err := runTask(t, nil, NewSliceGenerator[int]())
		require.NoError(t, err)
		require.Empty(t, out)
	})
}

func TestSink(t *testing.T) {
	var (
		jobCtx  = job.NewContext(job.Params{Name: t.Name(), Config: job.Config{OutboxCapacity: 2}})
		procCtx = job.NewProcessorContext(jobCtx, "sink", 0, 1)
		seen    []int
	)

	tr := NewSink(func(_ context.Context, v int) error {
		seen = append(seen, v)
		return nil
	})

	producers := []task.Producer[int]{stream.NewSliceProducer(1, 2), stream.NewSliceProducer(3)}
	p, err := task.NewFactory[int]().ProducerTaskProcessor(producers, tr, jobCtx, procCtx, dag.NewVertex("sink", 2, 0), 0)
	require.NoError(t, err)

	for i := 0; !p.Finished(); i++ {
		require.Less(t, i, 10)
		_, err := p.Step(t.Context())
		require.NoError(t, err)
	}
	require.ElementsMatch(t, []int{1, 2, 3}, seen)
}
