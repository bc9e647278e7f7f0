// Package models defines core node-based workflow models for graph execution
package models

// NodeType is the type tag of a workflow node.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
)

// Branch labels carried by edges leaving a condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// WorkflowNode represents a node instance in a workflow graph.
type WorkflowNode struct {
	ID            string         `json:"id"                       validate:"required"`
	Type          NodeType       `json:"type"                     validate:"required,oneof=trigger action condition"`
	Name          string         `json:"name"                     validate:"required,min=1"`
	Action        string         `json:"action"                   validate:"required"`
	Config        map[string]any `json:"config"`
	IntegrationID string         `json:"integration_id,omitempty"`
	PositionX     int            `json:"position_x"`
	PositionY     int            `json:"position_y"`
}

// IsTrigger reports whether the node starts the workflow.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// IsCondition reports whether the node selects an outgoing branch.
func (n *WorkflowNode) IsCondition() bool {
	return n.Type == NodeTypeCondition
}

// Clone returns a copy of the node with its own top-level config map.
func (n *WorkflowNode) Clone() WorkflowNode {
	c := *n
	if n.Config != nil {
		c.Config = make(map[string]any, len(n.Config))
		for k, v := range n.Config {
			c.Config[k] = v
		}
	}

	return c
}

// WorkflowEdge connects two nodes. Label is set on edges leaving a condition node.
type WorkflowEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"          validate:"required"`
	Target string `json:"target"          validate:"required"`
	Label  string `json:"label,omitempty" validate:"omitempty,oneof=true false"`
}

// Graph is the node/edge snapshot handed to the executor.
type Graph struct {
	Nodes []WorkflowNode `json:"nodes"`
	Edges []WorkflowEdge `json:"edges"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// IsTerminal reports whether the status is final for a node.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeStatusSuccess || s == NodeStatusError || s == NodeStatusSkipped
}
