// Package dag provides a generic directed acyclic graph and the immutable
// [Vertex] descriptor used by dataflow tasks.
package dag

import "fmt"

// Node is the constraint for values stored in a [Graph].
type Node interface {
	comparable
}

// Edge is a directed edge from an upstream node to a downstream node. Data
// flows from From to To.
type Edge[NodeType Node] struct {
	From, To NodeType
}

type nodeSet[NodeType Node] map[NodeType]struct{}

func (s nodeSet[NodeType]) Add(n NodeType) { s[n] = struct{}{} }

func (s nodeSet[NodeType]) Contains(n NodeType) bool {
	_, ok := s[n]
	return ok
}

// Graph is a directed graph of nodes. The zero value is ready for use.
//
// Graph retains insertion order of nodes and edges so that iteration over
// the graph is deterministic.
type Graph[NodeType Node] struct {
	nodes    []NodeType
	known    nodeSet[NodeType]
	children map[NodeType][]NodeType
	parents  map[NodeType][]NodeType
}

func (g *Graph[NodeType]) init() {
	if g.known == nil {
		g.known = make(nodeSet[NodeType])
		g.children = make(map[NodeType][]NodeType)
		g.parents = make(map[NodeType][]NodeType)
	}
}

// Add adds n to the graph and returns it. Adding a node which already exists
// is a no-op.
func (g *Graph[NodeType]) Add(n NodeType) NodeType {
	g.init()
	if g.known.Contains(n) {
		return n
	}
	g.known.Add(n)
	g.nodes = append(g.nodes, n)
	return n
}

// AddEdge adds a directed edge to the graph. Both nodes of the edge must
// already exist in the graph. AddEdge returns an error if the edge would
// connect a node to itself, if the edge already exists, or if the edge would
// introduce a cycle.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	g.init()

	switch {
	case !g.known.Contains(e.From):
		return fmt.Errorf("upstream node %v does not exist in graph", e.From)
	case !g.known.Contains(e.To):
		return fmt.Errorf("downstream node %v does not exist in graph", e.To)
	case e.From == e.To:
		return fmt.Errorf("node %v cannot be connected to itself", e.From)
	}

	for _, child := range g.children[e.From] {
		if child == e.To {
			return fmt.Errorf("edge %v -> %v already exists", e.From, e.To)
		}
	}

	if g.Reachable(e.To, e.From) {
		return fmt.Errorf("edge %v -> %v introduces a cycle", e.From, e.To)
	}

	g.children[e.From] = append(g.children[e.From], e.To)
	g.parents[e.To] = append(g.parents[e.To], e.From)
	return nil
}

// Reachable returns true if to can be reached from from by following
// downstream edges. A node is reachable from itself.
func (g *Graph[NodeType]) Reachable(from, to NodeType) bool {
	var (
		visited = make(nodeSet[NodeType])
		stack   = []NodeType{from}
	)

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n == to {
			return true
		}
		if visited.Contains(n) {
			continue
		}
		visited.Add(n)
		stack = append(stack, g.children[n]...)
	}
	return false
}

// Len returns the number of nodes in the graph.
func (g *Graph[NodeType]) Len() int { return len(g.nodes) }

// Nodes returns all nodes in insertion order.
func (g *Graph[NodeType]) Nodes() []NodeType {
	return append([]NodeType(nil), g.nodes...)
}

// Children returns the downstream nodes of n.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType { return g.children[n] }

// Parents returns the upstream nodes of n.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType { return g.parents[n] }

// Roots returns all nodes without upstream nodes.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.nodes {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns all nodes without downstream nodes.
func (g *Graph[NodeType]) Leaves() []NodeType {
	var leaves []NodeType
	for _, n := range g.nodes {
		if len(g.children[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Sorted returns the nodes of the graph in topological order: every node is
// returned after all of its parents. Nodes without ordering constraints
// retain insertion order.
func (g *Graph[NodeType]) Sorted() []NodeType {
	var (
		sorted   = make([]NodeType, 0, len(g.nodes))
		inDegree = make(map[NodeType]int, len(g.nodes))
		ready    []NodeType
	)

	for _, n := range g.nodes {
		inDegree[n] = len(g.parents[n])
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		sorted = append(sorted, n)

		for _, child := range g.children[n] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return sorted
}
