package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/google/uuid"
)

func (fp *Persistence) CreateExecution(_ context.Context, execution *models.ExecutionRecord) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	if execution.Status == "" {
		execution.Status = models.ExecutionStatusRunning
	}

	filePath, err := fp.path("executions", execution.ID+".json")
	if err != nil {
		return err
	}

	return writeJSON(filePath, execution)
}

func (fp *Persistence) ExecutionByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.readExecution(id, "GetByID")
}

func (fp *Persistence) readExecution(id, op string) (*models.ExecutionRecord, error) {
	filePath, err := fp.path("executions", id+".json")
	if err != nil {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	var execution models.ExecutionRecord

	found, err := readJSON(filePath, &execution)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// ExecutionsByWorkflow returns the executions of a workflow, newest first.
func (fp *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.executionsByWorkflow(workflowID)
}

func (fp *Persistence) executionsByWorkflow(workflowID string) ([]*models.ExecutionRecord, error) {
	dir := filepath.Join(fp.root, "executions")

	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.ExecutionRecord, 0)

	for _, name := range files {
		var execution models.ExecutionRecord

		found, err := readJSON(filepath.Join(dir, name), &execution)
		if err != nil {
			return nil, err
		}

		if found && execution.WorkflowID == workflowID {
			executions = append(executions, &execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

func (fp *Persistence) CompleteExecution(_ context.Context, executionID string, completion models.ExecutionCompletion) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	execution, err := fp.readExecution(executionID, "Complete")
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return persistence.NewExecutionError("Complete", executionID, persistence.ErrExecutionAlreadyCompleted)
	}

	completedAt := completion.CompletedAt
	execution.Status = completion.Status
	execution.Output = completion.Output
	execution.Error = completion.Error
	execution.CompletedAt = &completedAt

	filePath, err := fp.path("executions", executionID+".json")
	if err != nil {
		return err
	}

	return writeJSON(filePath, execution)
}

// DeleteExecutionsByWorkflow removes each execution's node logs before the execution itself.
func (fp *Persistence) DeleteExecutionsByWorkflow(_ context.Context, workflowID string) (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	executions, err := fp.executionsByWorkflow(workflowID)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, execution := range executions {
		logDir, err := fp.path("node_logs", execution.ID)
		if err != nil {
			return deleted, err
		}

		err = os.RemoveAll(logDir)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete node logs of execution %s: %w", execution.ID, err)
		}

		filePath, err := fp.path("executions", execution.ID+".json")
		if err != nil {
			return deleted, err
		}

		err = os.Remove(filePath)
		if err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("failed to delete execution %s: %w", execution.ID, err)
		}

		deleted++
	}

	return deleted, nil
}
