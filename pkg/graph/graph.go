// Package graph provides dependency ordering over workflow node/edge snapshots.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/flowexec/pkg/models"
)

var (
	// ErrCycle indicates the edge set contains a cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrUnknownNode indicates an edge references a node id missing from the graph.
	ErrUnknownNode = errors.New("edge references unknown node")

	// ErrDuplicateNode indicates two nodes share the same id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrEmptyNodeID indicates a node without an id.
	ErrEmptyNodeID = errors.New("node id is empty")
)

// StructuralError reports a graph that cannot be executed at all.
type StructuralError struct {
	Err     error
	NodeIDs []string
	EdgeID  string
}

func (e *StructuralError) Error() string {
	switch {
	case e.EdgeID != "" && len(e.NodeIDs) > 0:
		return fmt.Sprintf("%v: edge %s -> %s", e.Err, e.EdgeID, strings.Join(e.NodeIDs, ", "))
	case len(e.NodeIDs) > 0:
		return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.NodeIDs, ", "))
	default:
		return e.Err.Error()
	}
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is a structural graph error.
func IsStructural(err error) bool {
	var se *StructuralError

	return errors.As(err, &se)
}

// Index is the adjacency view of a graph snapshot.
type Index struct {
	nodes    map[string]*models.WorkflowNode
	position map[string]int
	incoming map[string][]models.WorkflowEdge
	outgoing map[string][]models.WorkflowEdge
}

// NewIndex validates the snapshot and builds adjacency lists.
// Edges are kept in their original order per node.
func NewIndex(g models.Graph) (*Index, error) {
	idx := &Index{
		nodes:    make(map[string]*models.WorkflowNode, len(g.Nodes)),
		position: make(map[string]int, len(g.Nodes)),
		incoming: make(map[string][]models.WorkflowEdge, len(g.Nodes)),
		outgoing: make(map[string][]models.WorkflowEdge, len(g.Nodes)),
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.ID == "" {
			return nil, &StructuralError{Err: ErrEmptyNodeID, NodeIDs: []string{fmt.Sprintf("#%d", i)}}
		}

		if _, exists := idx.nodes[node.ID]; exists {
			return nil, &StructuralError{Err: ErrDuplicateNode, NodeIDs: []string{node.ID}}
		}

		idx.nodes[node.ID] = node
		idx.position[node.ID] = i
	}

	for _, edge := range g.Edges {
		for _, endpoint := range []string{edge.Source, edge.Target} {
			if _, ok := idx.nodes[endpoint]; !ok {
				return nil, &StructuralError{Err: ErrUnknownNode, NodeIDs: []string{endpoint}, EdgeID: edge.ID}
			}
		}

		idx.outgoing[edge.Source] = append(idx.outgoing[edge.Source], edge)
		idx.incoming[edge.Target] = append(idx.incoming[edge.Target], edge)
	}

	return idx, nil
}

// Node returns the node with the given id.
func (idx *Index) Node(id string) (*models.WorkflowNode, bool) {
	n, ok := idx.nodes[id]

	return n, ok
}

// Incoming returns the edges that end at the node.
func (idx *Index) Incoming(id string) []models.WorkflowEdge {
	return idx.incoming[id]
}

// Outgoing returns the edges that start at the node.
func (idx *Index) Outgoing(id string) []models.WorkflowEdge {
	return idx.outgoing[id]
}

// Order returns the node ids in a topological order.
// Among nodes that are ready at the same time the one declared first wins.
func (idx *Index) Order() ([]string, error) {
	inDegree := make(map[string]int, len(idx.nodes))
	for id := range idx.nodes {
		inDegree[id] = len(idx.incoming[id])
	}

	ready := make([]string, 0, len(idx.nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return idx.position[ready[i]] < idx.position[ready[j]]
	})

	order := make([]string, 0, len(idx.nodes))

	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, edge := range idx.outgoing[current] {
			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				ready = idx.insertByPosition(ready, edge.Target)
			}
		}
	}

	if len(order) != len(idx.nodes) {
		remaining := make([]string, 0, len(idx.nodes)-len(order))
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}

		sort.Slice(remaining, func(i, j int) bool {
			return idx.position[remaining[i]] < idx.position[remaining[j]]
		})

		return nil, &StructuralError{Err: ErrCycle, NodeIDs: remaining}
	}

	return order, nil
}

func (idx *Index) insertByPosition(ready []string, id string) []string {
	pos := idx.position[id]
	at := sort.Search(len(ready), func(i int) bool {
		return idx.position[ready[i]] > pos
	})

	ready = append(ready, "")
	copy(ready[at+1:], ready[at:])
	ready[at] = id

	return ready
}

// Order validates the snapshot and returns a topological order of its node ids.
func Order(g models.Graph) ([]string, error) {
	idx, err := NewIndex(g)
	if err != nil {
		return nil, err
	}

	return idx.Order()
}
