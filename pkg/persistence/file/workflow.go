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

// Workflows returns the stored workflows, newest first, optionally filtered by owner.
func (fp *Persistence) Workflows(_ context.Context, owner string) ([]*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	dir := filepath.Join(fp.root, "workflows")

	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(files))

	for _, name := range files {
		var workflow models.Workflow

		found, err := readJSON(filepath.Join(dir, name), &workflow)
		if err != nil {
			return nil, err
		}

		if !found || (owner != "" && workflow.Owner != owner) {
			continue
		}

		workflows = append(workflows, &workflow)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// WorkflowByID retrieves a workflow by its ID from the file system.
func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	filePath, err := fp.path("workflows", id+".json")
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	var workflow models.Workflow

	found, err := readJSON(filePath, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// SaveWorkflow saves a workflow to the file system.
func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	filePath, err := fp.path("workflows", workflow.ID+".json")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeJSON(filePath, workflow)
}

// DeleteWorkflow removes a workflow by its ID.
func (fp *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	filePath, err := fp.path("workflows", id+".json")
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	err = os.Remove(filePath)
	if os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
