package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/grafana/dataflow/pkg/dataflow/dag"
	"github.com/grafana/dataflow/pkg/dataflow/job"
	"github.com/grafana/dataflow/pkg/dataflow/stream"
	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// Build instantiates the tasks of plan. Every stage yields one task per
// parallel instance. Every pair of connected tasks shares a dedicated queue,
// so the order of chunks between two tasks is preserved.
//
// Tasks are returned in topological order of their stages.
func Build[T any](jobCtx *job.Context, plan *Plan[T], factory *task.Factory[T], cfg Config) ([]*task.Processor[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	} else if plan.graph.Len() == 0 {
		return nil, errors.New("plan has no stages")
	}

	var (
		names = plan.Stages()

		// queues[edge][i][j] connects instance i of edge.From to instance j
		// of edge.To.
		queues = make(map[dag.Edge[string]][][]*stream.Queue[T])
	)

	for _, from := range names {
		upstream, _ := plan.Stage(from)
		for _, to := range plan.graph.Children(from) {
			downstream, _ := plan.Stage(to)

			grid := make([][]*stream.Queue[T], upstream.Parallelism)
			for i := range grid {
				grid[i] = make([]*stream.Queue[T], downstream.Parallelism)
				for j := range grid[i] {
					grid[i][j] = stream.NewQueue[T](cfg.QueueCapacity)
				}
			}
			queues[dag.Edge[string]{From: from, To: to}] = grid
		}
	}

	var tasks []*task.Processor[T]
	for _, name := range names {
		stage, _ := plan.Stage(name)
		vertex := plan.Vertex(name)

		for i := range stage.Parallelism {
			var producers []task.Producer[T]
			for _, parent := range plan.graph.Parents(name) {
				for _, row := range queues[dag.Edge[string]{From: parent, To: name}] {
					producers = append(producers, row[i])
				}
			}

			var consumers []task.Consumer[T]
			for _, child := range plan.graph.Children(name) {
				edge := dag.Edge[string]{From: name, To: child}
				edgeConsumers, err := route(stage, plan.routes[edge], queues[edge][i])
				if err != nil {
					return nil, fmt.Errorf("edge %s -> %s: %w", name, child, err)
				}
				consumers = append(consumers, edgeConsumers...)
			}

			pctx := job.NewProcessorContext(jobCtx, name, i, stage.Parallelism)
			tr, err := stage.New(pctx)
			if err != nil {
				return nil, fmt.Errorf("creating transformation for %s: %w", pctx, err)
			}

			p, err := factory.GetTaskProcessor(producers, consumers, jobCtx, pctx, tr, vertex, i)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, p)
		}
	}

	level.Debug(jobCtx.Logger()).Log("msg", "built pipeline", "stages", len(names), "tasks", len(tasks), "edges", len(queues))
	return tasks, nil
}

// route returns the consumers through which an upstream task reaches the
// downstream instances in targets.
func route[T any](stage Stage[T], routing Routing, targets []*stream.Queue[T]) ([]task.Consumer[T], error) {
	consumers := make([]task.Consumer[T], 0, len(targets))
	for _, q := range targets {
		consumers = append(consumers, q)
	}
	if routing == RoutingBroadcast || len(consumers) == 1 {
		return consumers, nil
	}

	var key stream.KeyFunc[T]
	if routing == RoutingPartitioned {
		key = stage.Key
	}

	partitioner, err := stream.NewPartitioner(key, consumers...)
	if err != nil {
		return nil, err
	}
	return []task.Consumer[T]{partitioner}, nil
}
