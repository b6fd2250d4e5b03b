// Package pipeline plans the tasks of a dataflow job. A [Plan] describes
// stages and the edges between them; [Build] instantiates one task processor
// per parallel instance of every stage and connects them with bounded
// queues.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/dataflow/pkg/dataflow/dag"
	"github.com/grafana/dataflow/pkg/dataflow/job"
	"github.com/grafana/dataflow/pkg/dataflow/stream"
	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// Routing determines how the chunks of an upstream task are distributed
// over the parallel instances of a downstream stage.
type Routing int

const (
	// RoutingPartitioned routes every chunk to one downstream instance,
	// chosen by the partition key of the upstream stage.
	RoutingPartitioned Routing = iota

	// RoutingRoundRobin routes every chunk to one downstream instance, in
	// turn.
	RoutingRoundRobin

	// RoutingBroadcast routes every chunk to all downstream instances.
	RoutingBroadcast
)

var routingNames = map[Routing]string{
	RoutingPartitioned: "partitioned",
	RoutingRoundRobin:  "round_robin",
	RoutingBroadcast:   "broadcast",
}

func (r Routing) String() string {
	if name, ok := routingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Routing(%d)", r)
}

// ParseRouting parses the name of a routing.
func ParseRouting(s string) (Routing, error) {
	for r, name := range routingNames {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown routing %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Routing) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	parsed, err := ParseRouting(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Routing) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// Stage describes a vertex of the job and how to instantiate its tasks.
type Stage[T any] struct {
	Name        string
	Parallelism int

	// New creates the transformation of one task of the stage.
	New func(pctx *job.ProcessorContext) (task.Transformation[T], error)

	// Key returns the partition key of chunks emitted by the stage. Key is
	// required if the stage has outgoing partitioned edges.
	Key stream.KeyFunc[T]
}

// Plan is a DAG of stages.
type Plan[T any] struct {
	graph  dag.Graph[string]
	stages map[string]Stage[T]
	routes map[dag.Edge[string]]Routing
}

// NewPlan returns an empty plan.
func NewPlan[T any]() *Plan[T] {
	return &Plan[T]{
		stages: make(map[string]Stage[T]),
		routes: make(map[dag.Edge[string]]Routing),
	}
}

// AddStage adds a stage to the plan. Stage names must be unique.
func (p *Plan[T]) AddStage(s Stage[T]) error {
	switch {
	case s.Name == "":
		return errors.New("stage name is required")
	case s.Parallelism < 1:
		return fmt.Errorf("stage %s: parallelism must be at least 1", s.Name)
	case s.New == nil:
		return fmt.Errorf("stage %s: transformation constructor is required", s.Name)
	}
	if _, exists := p.stages[s.Name]; exists {
		return fmt.Errorf("stage %s already exists", s.Name)
	}

	p.stages[s.Name] = s
	p.graph.Add(s.Name)
	return nil
}

// Connect adds an edge from the stage named from to the stage named to.
func (p *Plan[T]) Connect(from, to string, routing Routing) error {
	if _, ok := routingNames[routing]; !ok {
		return fmt.Errorf("edge %s -> %s: unknown routing %s", from, to, routing)
	}
	if s, ok := p.stages[from]; ok && routing == RoutingPartitioned && s.Key == nil {
		return fmt.Errorf("edge %s -> %s: partitioned routing requires stage %s to have a key", from, to, from)
	}

	edge := dag.Edge[string]{From: from, To: to}
	if err := p.graph.AddEdge(edge); err != nil {
		return err
	}
	p.routes[edge] = routing
	return nil
}

// Stage returns the stage with the given name.
func (p *Plan[T]) Stage(name string) (Stage[T], bool) {
	s, ok := p.stages[name]
	return s, ok
}

// Stages returns the names of all stages in topological order.
func (p *Plan[T]) Stages() []string { return p.graph.Sorted() }

// Routing returns the routing of the edge from -> to.
func (p *Plan[T]) Routing(from, to string) (Routing, bool) {
	r, ok := p.routes[dag.Edge[string]{From: from, To: to}]
	return r, ok
}

// Vertex returns the vertex descriptor of the stage with the given name.
func (p *Plan[T]) Vertex(name string) *dag.Vertex {
	return dag.NewVertex(name, len(p.graph.Parents(name)), len(p.graph.Children(name)))
}
