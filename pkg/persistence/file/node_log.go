package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/google/uuid"
)

// Node logs live under node_logs/<execution id>/<log id>.json; the log id is a v7 uuid so
// file name order is start order.
func (fp *Persistence) StartNodeLog(_ context.Context, executionID string, node models.WorkflowNode, input map[string]any) (string, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	logs, err := fp.nodeLogs(executionID)
	if err != nil {
		return "", err
	}

	for _, entry := range logs {
		if entry.NodeID == node.ID && entry.Status == models.NodeStatusRunning {
			return "", persistence.NewNodeLogError("Start", executionID, node.ID, persistence.ErrNodeAlreadyRunning)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate node log ID: %w", err)
	}

	entry := &models.NodeExecutionLog{
		ID:          id.String(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		NodeType:    node.Type,
		Status:      models.NodeStatusRunning,
		Input:       input,
		StartedAt:   time.Now().UTC(),
	}

	filePath, err := fp.path("node_logs", executionID, entry.ID+".json")
	if err != nil {
		return "", err
	}

	err = writeJSON(filePath, entry)
	if err != nil {
		return "", err
	}

	return entry.ID, nil
}

func (fp *Persistence) CompleteNodeLog(_ context.Context, logID string, completion models.NodeLogCompletion) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(fp.root, "node_logs", "*", logID+".json"))
	if err != nil || len(matches) == 0 {
		return fmt.Errorf("node log %s: %w", logID, persistence.ErrNodeLogNotFound)
	}

	var entry models.NodeExecutionLog

	found, err := readJSON(matches[0], &entry)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("node log %s: %w", logID, persistence.ErrNodeLogNotFound)
	}

	if entry.Status != models.NodeStatusRunning {
		return fmt.Errorf("node log %s: %w", logID, persistence.ErrNodeLogAlreadyCompleted)
	}

	completedAt := completion.CompletedAt
	entry.Status = completion.Status
	entry.Output = completion.Output
	entry.Error = completion.Error
	entry.CompletedAt = &completedAt
	entry.DurationMs = completion.DurationMs

	return writeJSON(matches[0], &entry)
}

func (fp *Persistence) RecordSkippedNode(_ context.Context, executionID string, node models.WorkflowNode, reason string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate node log ID: %w", err)
	}

	now := time.Now().UTC()

	entry := &models.NodeExecutionLog{
		ID:          id.String(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		NodeType:    node.Type,
		Status:      models.NodeStatusSkipped,
		Error:       reason,
		StartedAt:   now,
		CompletedAt: &now,
	}

	filePath, err := fp.path("node_logs", executionID, entry.ID+".json")
	if err != nil {
		return err
	}

	return writeJSON(filePath, entry)
}

func (fp *Persistence) NodeLogsByExecution(_ context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.nodeLogs(executionID)
}

func (fp *Persistence) nodeLogs(executionID string) ([]*models.NodeExecutionLog, error) {
	dir, err := fp.path("node_logs", executionID)
	if err != nil {
		return nil, err
	}

	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.NodeExecutionLog, 0, len(files))

	for _, name := range files {
		var entry models.NodeExecutionLog

		found, err := readJSON(filepath.Join(dir, name), &entry)
		if err != nil {
			return nil, err
		}

		if found {
			logs = append(logs, &entry)
		}
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].StartedAt.Before(logs[j].StartedAt)
	})

	return logs, nil
}
