package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/grafana/dataflow/pkg/dataflow/columnar"
	"github.com/grafana/dataflow/pkg/dataflow/job"
	"github.com/grafana/dataflow/pkg/dataflow/pipeline"
	"github.com/grafana/dataflow/pkg/dataflow/stream"
	"github.com/grafana/dataflow/pkg/dataflow/task"
	"github.com/grafana/dataflow/pkg/dataflow/transform"
)

// Vertex kinds supported in job files.
const (
	KindSequence = "sequence"
	KindFilter   = "filter"
	KindSum      = "sum"
	KindIdentity = "identity"
)

// JobSpec is the content of a job file.
type JobSpec struct {
	Name     string       `yaml:"name"`
	Vertices []VertexSpec `yaml:"vertices"`
	Edges    []EdgeSpec   `yaml:"edges"`
}

// VertexSpec describes one vertex of a job.
type VertexSpec struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Parallelism int    `yaml:"parallelism"`

	// sequence
	Start     int64 `yaml:"start"`
	Count     int64 `yaml:"count"`
	BatchSize int64 `yaml:"batch_size"`

	// filter
	Modulo    int64  `yaml:"modulo"`
	Remainder int64  `yaml:"remainder"`
	Min       *int64 `yaml:"min"`
	Max       *int64 `yaml:"max"`
}

// EdgeSpec connects two vertices of a job.
type EdgeSpec struct {
	From    string           `yaml:"from"`
	To      string           `yaml:"to"`
	Routing pipeline.Routing `yaml:"routing"`
}

// LoadJobSpec reads and validates a job file.
func LoadJobSpec(file string) (*JobSpec, error) {
	buf, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "reading job file")
	}
	return ParseJobSpec(buf)
}

// ParseJobSpec parses and validates the content of a job file.
func ParseJobSpec(buf []byte) (*JobSpec, error) {
	spec := &JobSpec{}
	if err := yaml.UnmarshalStrict(buf, spec); err != nil {
		return nil, errors.Wrap(err, "parsing job file")
	}
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid job")
	}
	return spec, nil
}

// Validate validates the job.
func (s *JobSpec) Validate() error {
	if s.Name == "" {
		return errors.New("job name is required")
	} else if len(s.Vertices) == 0 {
		return errors.New("job has no vertices")
	}

	var (
		kinds    = make(map[string]string, len(s.Vertices))
		inputs   = make(map[string]int)
		outgoing = make(map[string]int)
	)

	for i, v := range s.Vertices {
		if v.Name == "" {
			return errors.Errorf("vertex %d has no name", i)
		}
		if _, exists := kinds[v.Name]; exists {
			return errors.Errorf("duplicate vertex %s", v.Name)
		}

		switch v.Kind {
		case KindSequence:
			if v.Count < 0 {
				return errors.Errorf("vertex %s: count must not be negative", v.Name)
			}
		case KindFilter:
			if v.Modulo < 0 {
				return errors.Errorf("vertex %s: modulo must not be negative", v.Name)
			}
		case KindSum, KindIdentity:
		default:
			return errors.Errorf("vertex %s: unknown kind %q", v.Name, v.Kind)
		}
		kinds[v.Name] = v.Kind
	}

	for _, e := range s.Edges {
		if _, ok := kinds[e.From]; !ok {
			return errors.Errorf("edge %s -> %s: unknown vertex %s", e.From, e.To, e.From)
		}
		if _, ok := kinds[e.To]; !ok {
			return errors.Errorf("edge %s -> %s: unknown vertex %s", e.From, e.To, e.To)
		}

		// Records are released by the transformation receiving them, so each
		// record may only reach one downstream task.
		if e.Routing == pipeline.RoutingBroadcast {
			return errors.Errorf("edge %s -> %s: broadcast routing is not supported for record batches", e.From, e.To)
		}
		outgoing[e.From]++
		if outgoing[e.From] > 1 {
			return errors.Errorf("vertex %s: at most one outgoing edge is supported", e.From)
		}
		inputs[e.To]++
	}

	for name, kind := range kinds {
		if kind == KindSequence && inputs[name] > 0 {
			return errors.Errorf("vertex %s: sequence vertices cannot have inputs", name)
		}
	}
	return nil
}

// Plan returns the pipeline plan of the job. Record batches are allocated
// from mem.
func (s *JobSpec) Plan(mem memory.Allocator) (*pipeline.Plan[arrow.RecordBatch], *Results, error) {
	var (
		plan    = pipeline.NewPlan[arrow.RecordBatch]()
		results = &Results{sums: make(map[string][]*columnar.Sum)}
	)

	for _, v := range s.Vertices {
		stage := pipeline.Stage[arrow.RecordBatch]{
			Name:        v.Name,
			Parallelism: max(v.Parallelism, 1),
			New:         newTransformation(v, mem, results),
			Key:         stream.KeyFunc[arrow.RecordBatch](columnar.PartitionKey),
		}
		if err := plan.AddStage(stage); err != nil {
			return nil, nil, err
		}
	}

	for _, e := range s.Edges {
		if err := plan.Connect(e.From, e.To, e.Routing); err != nil {
			return nil, nil, err
		}
	}
	return plan, results, nil
}

func newTransformation(v VertexSpec, mem memory.Allocator, results *Results) func(*job.ProcessorContext) (task.Transformation[arrow.RecordBatch], error) {
	return func(pctx *job.ProcessorContext) (task.Transformation[arrow.RecordBatch], error) {
		switch v.Kind {
		case KindSequence:
			start, count := split(v.Start, v.Count, pctx.Index(), pctx.Parallelism())
			return columnar.NewSequence(mem, start, count, max(v.BatchSize, 1)), nil

		case KindFilter:
			return columnar.NewFilter(mem, v.predicate()), nil

		case KindSum:
			sum := columnar.NewSum(mem)
			results.add(v.Name, sum)
			return sum, nil

		case KindIdentity:
			return &transform.Identity[arrow.RecordBatch]{}, nil

		default:
			return nil, fmt.Errorf("unknown kind %q", v.Kind)
		}
	}
}

// split returns the part of the range [start, start+count) generated by the
// instance at index out of parallelism instances.
func split(start, count int64, index, parallelism int) (int64, int64) {
	per := (count + int64(parallelism) - 1) / int64(parallelism)
	from := min(int64(index)*per, count)
	to := min(from+per, count)
	return start + from, to - from
}

func (v VertexSpec) predicate() func(int64) bool {
	return func(value int64) bool {
		if v.Modulo > 0 && value%v.Modulo != v.Remainder {
			return false
		}
		if v.Min != nil && value < *v.Min {
			return false
		}
		if v.Max != nil && value > *v.Max {
			return false
		}
		return true
	}
}

// Results collects the outcome of the sum vertices of a job.
type Results struct {
	mtx  sync.Mutex
	sums map[string][]*columnar.Sum
}

func (r *Results) add(vertex string, sum *columnar.Sum) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.sums[vertex] = append(r.sums[vertex], sum)
}

// Totals returns the total and the number of rows per sum vertex.
func (r *Results) Totals() map[string][2]int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	totals := make(map[string][2]int64, len(r.sums))
	for vertex, sums := range r.sums {
		var total, rows int64
		for _, sum := range sums {
			total += sum.Total()
			rows += sum.Rows()
		}
		totals[vertex] = [2]int64{total, rows}
	}
	return totals
}

// Report writes one line per sum vertex to w.
func (r *Results) Report(w io.Writer) error {
	totals := r.Totals()

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s total=%d rows=%d\n", name, totals[name][0], totals[name][1]); err != nil {
			return err
		}
	}
	return nil
}
