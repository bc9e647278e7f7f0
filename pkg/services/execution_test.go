package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowexec/pkg/events"
	"github.com/dukex/flowexec/pkg/mocks"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/persistence/file"
	"github.com/dukex/flowexec/pkg/redact"
	"github.com/dukex/flowexec/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type executionFixture struct {
	store     *file.Persistence
	workflows *Workflow
	executor  *workflow.Executor
	service   *Execution
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	reg := newTestRegistry(t)
	executor := workflow.NewExecutor(slog.Default(), reg, store, store)

	return &executionFixture{
		store:     store,
		workflows: NewWorkflow(store, reg),
		executor:  executor,
		service:   NewExecution(slog.Default(), store, executor),
	}
}

func (f *executionFixture) createWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	wf, err := f.workflows.Create(context.Background(), testWorkflow())
	require.NoError(t, err)

	return wf
}

func TestExecution_StartRunsInBackground(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()
	wf := f.createWorkflow(t)

	record, err := f.service.Start(ctx, StartRequest{
		WorkflowID:  wf.ID,
		TriggerType: "manual",
		Input:       map[string]any{"order": "A-1", "api_key": "sk-live-123"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, record.Status)
	assert.Equal(t, wf.Owner, record.Owner)
	assert.Equal(t, redact.Mask, record.Input["api_key"])

	f.executor.Wait()

	report, err := f.service.Status(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, report.Execution.Status)
	assert.NotNil(t, report.Execution.CompletedAt)
	assert.Equal(t, redact.Mask, report.Execution.Input["api_key"])
	require.Len(t, report.Nodes, 2)

	for _, entry := range report.Nodes {
		assert.Equal(t, models.NodeStatusSuccess, entry.Status)
	}

	echo, ok := report.Execution.Output["Echo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A-1", echo["order"])
}

func TestExecution_StartRejectsDisabledWorkflow(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()
	wf := f.createWorkflow(t)

	disabled := false
	_, err := f.workflows.Update(ctx, wf.ID, WorkflowPatch{Enabled: &disabled})
	require.NoError(t, err)

	_, err = f.service.Start(ctx, StartRequest{WorkflowID: wf.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowDisabled)
	assert.True(t, IsConflictError(err))
	assert.False(t, IsValidationError(err))

	records, err := f.service.List(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecution_StartUnknownWorkflow(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.service.Start(context.Background(), StartRequest{WorkflowID: "missing"})
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecution_StatusUnknownExecution(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.service.Status(context.Background(), "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecution_ListAndDelete(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()
	wf := f.createWorkflow(t)

	for range 3 {
		_, err := f.service.Start(ctx, StartRequest{WorkflowID: wf.ID, Input: map[string]any{"order": "x"}})
		require.NoError(t, err)
	}

	f.executor.Wait()

	records, err := f.service.List(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	deleted, err := f.service.DeleteByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	records, err = f.service.List(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = f.service.List(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecution_StartPublishesToWorkers(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	workflows := NewWorkflow(store, newTestRegistry(t))
	bus := new(mocks.MockEventBus)
	service := NewExecution(slog.Default(), store, nil, WithPublisher(bus))
	ctx := context.Background()

	wf, err := workflows.Create(ctx, testWorkflow())
	require.NoError(t, err)

	bus.On("Publish", mock.Anything, wf.ID, mock.MatchedBy(func(event events.WorkflowTriggered) bool {
		return event.WorkflowID == wf.ID &&
			event.TriggerType == "webhook" &&
			event.TriggerInput["order"] == "A-1" &&
			len(event.Graph.Nodes) == 2
	})).Return(nil).Once()

	record, err := service.Start(ctx, StartRequest{WorkflowID: wf.ID, TriggerType: "webhook", Input: map[string]any{"order": "A-1"}})
	require.NoError(t, err)
	bus.AssertExpectations(t)

	stored, err := store.ExecutionByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, stored.Status)
}

func TestExecution_PublishFailureAbandonsRecord(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	workflows := NewWorkflow(store, newTestRegistry(t))
	bus := new(mocks.MockEventBus)
	service := NewExecution(slog.Default(), store, nil, WithPublisher(bus))
	ctx := context.Background()

	wf, err := workflows.Create(ctx, testWorkflow())
	require.NoError(t, err)

	bus.On("Publish", mock.Anything, wf.ID, mock.Anything).Return(errors.New("broker down"))

	_, err = service.Start(ctx, StartRequest{WorkflowID: wf.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	records, err := store.ExecutionsByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionStatusError, records[0].Status)
	assert.Equal(t, "broker down", records[0].Error)
}

func TestExecution_HandleTriggered(t *testing.T) {
	runner := new(mocks.MockRunner)
	service := NewExecution(slog.Default(), file.NewPersistence(t.TempDir()), runner)
	event := &events.WorkflowTriggered{
		BaseEvent:    events.NewBaseEvent(events.WorkflowTriggeredEvent, "wf-1"),
		ExecutionID:  "exec-1",
		TriggerInput: map[string]any{"a": 1},
	}

	runner.On("Execute", mock.Anything, event.Graph, event.TriggerInput, "exec-1", "wf-1").Return().Once()

	require.NoError(t, service.HandleTriggered(context.Background(), event))
	runner.AssertExpectations(t)

	withoutRunner := NewExecution(slog.Default(), file.NewPersistence(t.TempDir()), nil)
	assert.ErrorIs(t, withoutRunner.HandleTriggered(context.Background(), event), ErrInvalidRequest)
}

func TestExecution_Notify(t *testing.T) {
	bus := new(mocks.MockEventBus)
	service := NewExecution(slog.Default(), file.NewPersistence(t.TempDir()), nil, WithPublisher(bus))
	started := time.Now()

	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(event events.WorkflowExecutionCompleted) bool {
		return event.ExecutionID == "exec-1" && event.DurationMs == 1500
	})).Return(nil).Once()

	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(event events.WorkflowExecutionFailed) bool {
		return event.ExecutionID == "exec-2" &&
			event.FailedNodeID == "fetch" &&
			event.Error == "Authorization: Bearer "+redact.Mask
	})).Return(nil).Once()

	service.Notify(context.Background(), &workflow.Summary{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Status:      models.ExecutionStatusSuccess,
		StartedAt:   started,
		CompletedAt: started.Add(1500 * time.Millisecond),
	})

	service.Notify(context.Background(), &workflow.Summary{
		ExecutionID:  "exec-2",
		WorkflowID:   "wf-1",
		Status:       models.ExecutionStatusError,
		FailedNodeID: "fetch",
		Error:        "Authorization: Bearer abcdefghijklmnop",
		StartedAt:    started,
		CompletedAt:  started,
	})

	service.Notify(context.Background(), nil)

	bus.AssertExpectations(t)
}
