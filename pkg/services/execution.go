package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowexec/pkg/eventbus"
	"github.com/dukex/flowexec/pkg/events"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/redact"
	"github.com/dukex/flowexec/pkg/workflow"
	"github.com/google/uuid"
)

// Runner runs a graph snapshot for an already created execution record.
type Runner interface {
	Execute(ctx context.Context, g models.Graph, triggerInput map[string]any, executionID, workflowID string)
}

type Execution struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runner      Runner
	publisher   eventbus.EventPublisher
}

type ExecutionOption func(*Execution)

// WithPublisher hands executions to workers through the event bus instead of running them in process.
func WithPublisher(publisher eventbus.EventPublisher) ExecutionOption {
	return func(s *Execution) {
		s.publisher = publisher
	}
}

// NewExecution creates the execution service. runner may be nil when a publisher is configured.
func NewExecution(logger *slog.Logger, persistence persistence.Persistence, runner Runner, opts ...ExecutionOption) *Execution {
	s := &Execution{
		logger:      logger.With("module", "execution_service"),
		persistence: persistence,
		runner:      runner,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// StartRequest identifies what to run and with which trigger input.
type StartRequest struct {
	WorkflowID  string
	TriggerType string
	Input       map[string]any
}

// Start creates a running execution record and dispatches it. It returns as soon as the
// record exists; the graph runs in the background or on a worker.
func (s *Execution) Start(ctx context.Context, req StartRequest) (*models.ExecutionRecord, error) {
	wf, err := s.persistence.WorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !wf.Enabled {
		return nil, newServiceError("Start", "workflow_disabled",
			fmt.Sprintf("workflow %s is disabled", wf.ID), ErrWorkflowDisabled)
	}

	if req.Input == nil {
		req.Input = map[string]any{}
	}

	record := &models.ExecutionRecord{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Owner:      wf.Owner,
		Status:     models.ExecutionStatusRunning,
		Input:      redact.Map(req.Input),
	}

	err = s.persistence.CreateExecution(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	logger := s.logger.With("execution_id", record.ID, "workflow_id", wf.ID, "trigger_type", req.TriggerType)
	snapshot := wf.Graph()

	if s.publisher != nil {
		err = s.publisher.Publish(ctx, wf.ID, events.WorkflowTriggered{
			BaseEvent:    events.NewBaseEvent(events.WorkflowTriggeredEvent, wf.ID),
			ExecutionID:  record.ID,
			TriggerType:  req.TriggerType,
			TriggerInput: req.Input,
			Graph:        snapshot,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to dispatch execution", "error", err)
			s.abandon(ctx, record.ID, err)

			return nil, fmt.Errorf("failed to dispatch execution %s: %w", record.ID, err)
		}

		logger.InfoContext(ctx, "Execution dispatched to workers")

		return record, nil
	}

	if s.runner == nil {
		s.abandon(ctx, record.ID, ErrInvalidRequest)

		return nil, fmt.Errorf("no runner configured: %w", ErrInvalidRequest)
	}

	s.runner.Execute(ctx, snapshot, req.Input, record.ID, wf.ID)
	logger.InfoContext(ctx, "Execution started")

	return record, nil
}

func (s *Execution) abandon(ctx context.Context, executionID string, cause error) {
	err := s.persistence.CompleteExecution(ctx, executionID, models.ExecutionCompletion{
		Status:      models.ExecutionStatusError,
		Error:       cause.Error(),
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark execution as failed", "execution_id", executionID, "error", err)
	}
}

// Status returns the execution record with its node logs, redacted again on the way out.
func (s *Execution) Status(ctx context.Context, executionID string) (*models.ExecutionStatusReport, error) {
	record, err := s.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	logs, err := s.persistence.NodeLogsByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node logs: %w", err)
	}

	for _, entry := range logs {
		entry.Input = redact.Map(entry.Input)
		entry.Output = redact.Map(entry.Output)
		entry.Error = redact.String(entry.Error)
	}

	return &models.ExecutionStatusReport{Execution: redactRecord(record), Nodes: logs}, nil
}

// List returns the executions of a workflow, newest first.
func (s *Execution) List(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	if _, err := s.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	records, err := s.persistence.ExecutionsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	for i, record := range records {
		records[i] = redactRecord(record)
	}

	return records, nil
}

// DeleteByWorkflow removes every execution of a workflow with its node logs.
func (s *Execution) DeleteByWorkflow(ctx context.Context, workflowID string) (int, error) {
	deleted, err := s.persistence.DeleteExecutionsByWorkflow(ctx, workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	s.logger.InfoContext(ctx, "Deleted executions", "workflow_id", workflowID, "count", deleted)

	return deleted, nil
}

// HandleTriggered runs a dispatched execution on a worker.
func (s *Execution) HandleTriggered(ctx context.Context, event *events.WorkflowTriggered) error {
	if s.runner == nil {
		return fmt.Errorf("no runner configured: %w", ErrInvalidRequest)
	}

	s.runner.Execute(ctx, event.Graph, event.TriggerInput, event.ExecutionID, event.WorkflowID)

	return nil
}

// Notify publishes the outcome of a finished run. It is meant as the executor completion hook.
func (s *Execution) Notify(ctx context.Context, summary *workflow.Summary) {
	if s.publisher == nil || summary == nil {
		return
	}

	duration := summary.CompletedAt.Sub(summary.StartedAt).Milliseconds()

	var event eventbus.Event

	if summary.Status == models.ExecutionStatusSuccess {
		event = events.WorkflowExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, summary.WorkflowID),
			ExecutionID: summary.ExecutionID,
			DurationMs:  duration,
			Output:      summary.Output,
		}
	} else {
		event = events.WorkflowExecutionFailed{
			BaseEvent:    events.NewBaseEvent(events.WorkflowExecutionFailedEvent, summary.WorkflowID),
			ExecutionID:  summary.ExecutionID,
			DurationMs:   duration,
			FailedNodeID: summary.FailedNodeID,
			Error:        redact.String(summary.Error),
		}
	}

	if err := s.publisher.Publish(ctx, summary.WorkflowID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish execution outcome",
			"execution_id", summary.ExecutionID,
			"error", err)
	}
}

func redactRecord(record *models.ExecutionRecord) *models.ExecutionRecord {
	record.Input = redact.Map(record.Input)
	record.Output = redact.Map(record.Output)
	record.Error = redact.String(record.Error)

	return record
}
