package models

import "time"

// ExecutionStatus is the global state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
)

// IsTerminal reports whether the execution can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError
}

// ExecutionRecord is one run of a workflow graph against a trigger input.
type ExecutionRecord struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Owner       string          `json:"owner"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NodeExecutionLog records one node invocation inside an execution.
type NodeExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeName    string         `json:"node_name"`
	NodeType    NodeType       `json:"node_type"`
	Status      NodeStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

// ExecutionStatusReport is the externally visible state of an execution.
type ExecutionStatusReport struct {
	Execution *ExecutionRecord    `json:"execution"`
	Nodes     []*NodeExecutionLog `json:"nodes"`
}

// NodeLogCompletion is the single update applied to a running node log.
type NodeLogCompletion struct {
	Status      NodeStatus
	Output      map[string]any
	Error       string
	CompletedAt time.Time
	DurationMs  int64
}

// ExecutionCompletion is the single update applied to a running execution.
type ExecutionCompletion struct {
	Status      ExecutionStatus
	Output      map[string]any
	Error       string
	CompletedAt time.Time
}
