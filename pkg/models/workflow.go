// Package models defines the core domain models for graph-based workflow automation
package models

import "time"

// Workflow represents a user-authored graph of integration actions.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                  validate:"required,min=3"`
	Description string          `json:"description"`
	Owner       string          `json:"owner"                 validate:"required"`
	Enabled     bool            `json:"enabled"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Edges       []*WorkflowEdge `json:"edges"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Graph returns an immutable snapshot of the workflow's nodes and edges.
// Node configurations are copied so later edits never leak into a running execution.
func (w *Workflow) Graph() Graph {
	nodes := make([]WorkflowNode, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if n == nil {
			continue
		}

		nodes = append(nodes, n.Clone())
	}

	edges := make([]WorkflowEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		if e == nil {
			continue
		}

		edges = append(edges, *e)
	}

	return Graph{Nodes: nodes, Edges: edges}
}

// TriggerNodes returns the workflow nodes of type trigger.
func (w *Workflow) TriggerNodes() []*WorkflowNode {
	var triggers []*WorkflowNode

	for _, n := range w.Nodes {
		if n != nil && n.IsTrigger() {
			triggers = append(triggers, n)
		}
	}

	return triggers
}
