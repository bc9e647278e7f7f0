package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(ids ...string) []models.WorkflowNode {
	out := make([]models.WorkflowNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.WorkflowNode{ID: id, Name: id, Type: models.NodeTypeAction})
	}

	return out
}

func edge(source, target string) models.WorkflowEdge {
	return models.WorkflowEdge{ID: source + "->" + target, Source: source, Target: target}
}

func TestOrder_Linear(t *testing.T) {
	g := models.Graph{
		Nodes: nodes("notify", "fetch", "trigger"),
		Edges: []models.WorkflowEdge{edge("trigger", "fetch"), edge("fetch", "notify")},
	}

	order, err := Order(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger", "fetch", "notify"}, order)
}

func TestOrder_TiesFollowDeclarationOrder(t *testing.T) {
	g := models.Graph{
		Nodes: nodes("trigger", "c", "b", "a", "join"),
		Edges: []models.WorkflowEdge{
			edge("trigger", "a"),
			edge("trigger", "b"),
			edge("trigger", "c"),
			edge("a", "join"),
			edge("b", "join"),
			edge("c", "join"),
		},
	}

	order, err := Order(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger", "c", "b", "a", "join"}, order)
}

func TestOrder_IncludesRootsWithoutTrigger(t *testing.T) {
	g := models.Graph{
		Nodes: nodes("x", "y", "z"),
		Edges: []models.WorkflowEdge{edge("y", "z")},
	}

	order, err := Order(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, order)
}

func TestOrder_Cycle(t *testing.T) {
	g := models.Graph{
		Nodes: nodes("trigger", "a", "b"),
		Edges: []models.WorkflowEdge{edge("trigger", "a"), edge("a", "b"), edge("b", "a")},
	}

	order, err := Order(g)
	require.Error(t, err)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrCycle)
	assert.True(t, IsStructural(err))
	assert.Contains(t, err.Error(), "a, b")
}

func TestOrder_SelfLoop(t *testing.T) {
	g := models.Graph{
		Nodes: nodes("a"),
		Edges: []models.WorkflowEdge{edge("a", "a")},
	}

	_, err := Order(g)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestNewIndex_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		graph models.Graph
		want  error
	}{
		{
			name:  "unknown edge target",
			graph: models.Graph{Nodes: nodes("a"), Edges: []models.WorkflowEdge{edge("a", "ghost")}},
			want:  ErrUnknownNode,
		},
		{
			name:  "unknown edge source",
			graph: models.Graph{Nodes: nodes("a"), Edges: []models.WorkflowEdge{edge("ghost", "a")}},
			want:  ErrUnknownNode,
		},
		{
			name:  "duplicate node",
			graph: models.Graph{Nodes: nodes("a", "a")},
			want:  ErrDuplicateNode,
		},
		{
			name:  "empty id",
			graph: models.Graph{Nodes: nodes("")},
			want:  ErrEmptyNodeID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.graph)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsStructural(err))
		})
	}
}

func TestIndex_Adjacency(t *testing.T) {
	g := models.Graph{
		Nodes: nodes("t", "c", "a", "b"),
		Edges: []models.WorkflowEdge{
			edge("t", "c"),
			{ID: "ct", Source: "c", Target: "a", Label: models.BranchTrue},
			{ID: "cf", Source: "c", Target: "b", Label: models.BranchFalse},
		},
	}

	idx, err := NewIndex(g)
	require.NoError(t, err)

	assert.Len(t, idx.Outgoing("c"), 2)
	assert.Equal(t, models.BranchTrue, idx.Outgoing("c")[0].Label)
	assert.Len(t, idx.Incoming("a"), 1)
	assert.Empty(t, idx.Incoming("t"))

	node, ok := idx.Node("b")
	require.True(t, ok)
	assert.Equal(t, "b", node.Name)
}

// Every node must come strictly after all of its direct predecessors.
func TestOrder_RandomDAGsAreTopological(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := range 200 {
		size := 2 + rng.Intn(15)
		ids := make([]string, size)

		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}

		var edges []models.WorkflowEdge

		// Only forward edges in a random permutation, so the graph is acyclic.
		perm := rng.Perm(size)
		for i := 0; i < size; i++ {
			for j := i + 1; j < size; j++ {
				if rng.Float64() < 0.3 {
					edges = append(edges, edge(ids[perm[i]], ids[perm[j]]))
				}
			}
		}

		order, err := Order(models.Graph{Nodes: nodes(ids...), Edges: edges})
		require.NoError(t, err, "run %d", run)
		require.Len(t, order, size)

		position := make(map[string]int, size)
		for i, id := range order {
			position[id] = i
		}

		for _, e := range edges {
			assert.Less(t, position[e.Source], position[e.Target], "run %d edge %s", run, e.ID)
		}
	}
}
