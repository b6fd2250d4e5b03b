package dag

import "fmt"

// Vertex is an immutable descriptor of one processing stage in a dataflow
// DAG. Vertices are referenced by tasks for diagnostics and for validating
// the producer/consumer sets a task is built with; they never drive task
// control flow.
type Vertex struct {
	name    string
	inputs  int
	outputs int
}

// NewVertex returns a Vertex with the given name and number of declared
// inbound and outbound edges.
func NewVertex(name string, inputs, outputs int) *Vertex {
	return &Vertex{name: name, inputs: inputs, outputs: outputs}
}

// Name returns the name of the vertex.
func (v *Vertex) Name() string { return v.name }

// Inputs returns the number of declared inbound edges.
func (v *Vertex) Inputs() int { return v.inputs }

// Outputs returns the number of declared outbound edges.
func (v *Vertex) Outputs() int { return v.outputs }

// String returns a human-readable summary of v.
func (v *Vertex) String() string {
	return fmt.Sprintf("%s(in=%d, out=%d)", v.name, v.inputs, v.outputs)
}
