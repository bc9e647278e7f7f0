// Package protocol defines the contract between the executor and step handlers.
package protocol

import (
	"context"
	"fmt"

	"github.com/dukex/flowexec/pkg/models"
)

// CredentialFunc resolves the decrypted credentials of the node's integration.
type CredentialFunc func(ctx context.Context) (map[string]string, error)

// Request is everything a handler receives for one node invocation.
type Request struct {
	ExecutionID   string
	WorkflowID    string
	Node          models.WorkflowNode
	Input         map[string]any
	IntegrationID string

	// Outputs holds the outputs of nodes that already succeeded, keyed by node name.
	Outputs map[string]any
	Trigger map[string]any

	// Credentials is nil when no credential store is configured.
	Credentials CredentialFunc
}

// Result is the outcome reported by a handler. Error is set only when Success is false.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func Ok(data map[string]any) Result {
	return Result{Success: true, Data: data}
}

func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Handler executes one node. A returned error is treated like a failed Result.
type Handler func(ctx context.Context, req Request) (Result, error)

// StepFunc is a handler that only needs its resolved input and credentials.
type StepFunc func(ctx context.Context, input map[string]any, credentials map[string]string) Result

// Step adapts fn into a Handler. Credentials are fetched only when the node references an integration.
func Step(fn StepFunc) Handler {
	return func(ctx context.Context, req Request) (Result, error) {
		var credentials map[string]string

		if req.IntegrationID != "" {
			if req.Credentials == nil {
				return Fail("integration %s requested but no credential store is configured", req.IntegrationID), nil
			}

			creds, err := req.Credentials(ctx)
			if err != nil {
				return Fail("failed to fetch credentials for integration %s: %v", req.IntegrationID, err), nil
			}

			credentials = creds
		}

		return fn(ctx, req.Input, credentials), nil
	}
}
