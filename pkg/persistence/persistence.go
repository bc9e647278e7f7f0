// Package persistence provides the storage abstraction for workflows, executions, node logs and integrations.
package persistence

import (
	"context"

	"github.com/dukex/flowexec/pkg/models"
)

type Persistence interface {
	WorkflowRepository
	ExecutionRepository
	NodeLogRepository
	IntegrationRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	Workflows(ctx context.Context, owner string) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.ExecutionRecord) error
	ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error)
	// CompleteExecution moves a running execution to a terminal state exactly once.
	CompleteExecution(ctx context.Context, executionID string, completion models.ExecutionCompletion) error
	// DeleteExecutionsByWorkflow removes node logs first, then their executions. It returns the number of executions removed.
	DeleteExecutionsByWorkflow(ctx context.Context, workflowID string) (int, error)
}

type NodeLogRepository interface {
	StartNodeLog(ctx context.Context, executionID string, node models.WorkflowNode, input map[string]any) (string, error)
	CompleteNodeLog(ctx context.Context, logID string, completion models.NodeLogCompletion) error
	RecordSkippedNode(ctx context.Context, executionID string, node models.WorkflowNode, reason string) error
	NodeLogsByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error)
}

type IntegrationRepository interface {
	SaveIntegration(ctx context.Context, integration *models.Integration) error
	IntegrationByID(ctx context.Context, id string) (*models.Integration, error)
	IntegrationsByOwner(ctx context.Context, owner string) ([]*models.Integration, error)
	DeleteIntegration(ctx context.Context, id string) error
}
