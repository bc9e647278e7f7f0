// Package events defines event types and structures for workflow execution notifications.
package events

import (
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow event; the event type travels in message metadata.
const Topic = "flowexec.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowTriggeredEvent          EventType = "workflow.triggered"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WorkflowTriggered asks a worker to run an already created execution.
// Graph is the snapshot taken when the execution was created.
type WorkflowTriggered struct {
	BaseEvent

	ExecutionID  string         `json:"execution_id"`
	TriggerType  string         `json:"trigger_type"`
	TriggerInput map[string]any `json:"trigger_input,omitempty"`
	Graph        models.Graph   `json:"graph"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	DurationMs  int64          `json:"duration_ms"`
	Output      map[string]any `json:"output,omitempty"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	DurationMs   int64  `json:"duration_ms"`
	FailedNodeID string `json:"failed_node_id,omitempty"`
	Error        string `json:"error"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

// Decode returns an empty event value for eventType, ready to be unmarshaled into.
func Decode(eventType EventType) (any, bool) {
	switch eventType {
	case WorkflowTriggeredEvent:
		return &WorkflowTriggered{}, true
	case WorkflowExecutionCompletedEvent:
		return &WorkflowExecutionCompleted{}, true
	case WorkflowExecutionFailedEvent:
		return &WorkflowExecutionFailed{}, true
	default:
		return nil, false
	}
}
