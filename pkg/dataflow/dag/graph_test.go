package dag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraph_AddEdge(t *testing.T) {
	t.Run("Fails with unknown nodes", func(t *testing.T) {
		var g Graph[string]
		g.Add("a")

		require.Error(t, g.AddEdge(Edge[string]{From: "a", To: "b"}))
		require.Error(t, g.AddEdge(Edge[string]{From: "b", To: "a"}))
	})

	t.Run("Fails with self edge", func(t *testing.T) {
		var g Graph[string]
		g.Add("a")

		require.Error(t, g.AddEdge(Edge[string]{From: "a", To: "a"}))
	})

	t.Run("Fails with duplicate edge", func(t *testing.T) {
		var g Graph[string]
		g.Add("a")
		g.Add("b")

		require.NoError(t, g.AddEdge(Edge[string]{From: "a", To: "b"}))
		require.Error(t, g.AddEdge(Edge[string]{From: "a", To: "b"}))
	})

	t.Run("Fails with cycle", func(t *testing.T) {
		var g Graph[string]
		g.Add("a")
		g.Add("b")
		g.Add("c")

		require.NoError(t, g.AddEdge(Edge[string]{From: "a", To: "b"}))
		require.NoError(t, g.AddEdge(Edge[string]{From: "b", To: "c"}))
		require.Error(t, g.AddEdge(Edge[string]{From: "c", To: "a"}), "edge should be rejected as it closes a cycle")

		require.Empty(t, g.Children("c"))
		require.Empty(t, g.Parents("a"))
	})
}

func TestGraph_Topology(t *testing.T) {
	var g Graph[string]
	for _, n := range []string{"sink", "source", "left", "right"} {
		g.Add(n)
	}

	for _, e := range []Edge[string]{
		{From: "source", To: "left"},
		{From: "source", To: "right"},
		{From: "left", To: "sink"},
		{From: "right", To: "sink"},
	} {
		require.NoError(t, g.AddEdge(e))
	}

	require.Equal(t, 4, g.Len())
	require.Equal(t, []string{"source"}, g.Roots())
	require.Equal(t, []string{"sink"}, g.Leaves())
	require.Equal(t, []string{"left", "right"}, g.Children("source"))
	require.Equal(t, []string{"left", "right"}, g.Parents("sink"))
	require.Equal(t, []string{"source", "left", "right", "sink"}, g.Sorted())
}

func TestGraph_Reachable(t *testing.T) {
	var g Graph[int]
	for i := 1; i <= 5; i++ {
		g.Add(i)
	}
	require.NoError(t, g.AddEdge(Edge[int]{From: 1, To: 2}))
	require.NoError(t, g.AddEdge(Edge[int]{From: 2, To: 3}))
	require.NoError(t, g.AddEdge(Edge[int]{From: 1, To: 4}))

	tt := []struct {
		from, to int
		expect   bool
	}{
		{1, 1, true},
		{1, 3, true},
		{1, 4, true},
		{3, 1, false},
		{4, 3, false},
		{1, 5, false},
		{5, 1, false},
	}

	for _, tc := range tt {
		t.Run(fmt.Sprintf("%d to %d", tc.from, tc.to), func(t *testing.T) {
			require.Equal(t, tc.expect, g.Reachable(tc.from, tc.to))
		})
	}
}

func TestVertex(t *testing.T) {
	v := NewVertex("filter", 1, 2)
	require.Equal(t, "filter", v.Name())
	require.Equal(t, 1, v.Inputs())
	require.Equal(t, 2, v.Outputs())
	require.Equal(t, "filter(in=1, out=2)", v.String())
}
