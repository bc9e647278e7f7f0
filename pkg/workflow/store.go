package workflow

import (
	"context"

	"github.com/dukex/flowexec/pkg/models"
)

// LogStore persists per-node execution logs. Inputs and outputs handed to it are already redacted.
type LogStore interface {
	StartNodeLog(ctx context.Context, executionID string, node models.WorkflowNode, input map[string]any) (string, error)
	CompleteNodeLog(ctx context.Context, logID string, completion models.NodeLogCompletion) error
	RecordSkippedNode(ctx context.Context, executionID string, node models.WorkflowNode, reason string) error
}

// ExecutionStore finalizes execution records.
type ExecutionStore interface {
	CompleteExecution(ctx context.Context, executionID string, completion models.ExecutionCompletion) error
}

// CredentialFetcher resolves decrypted credentials for an integration.
type CredentialFetcher interface {
	FetchCredentials(ctx context.Context, integrationID string) (map[string]string, error)
}
