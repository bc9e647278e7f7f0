// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/dukex/flowexec/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
// Enabled defaults to true.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Owner       string                 `json:"owner"       validate:"required"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes"       validate:"omitempty,dive"`
	Edges       []*models.WorkflowEdge `json:"edges"       validate:"omitempty,dive"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates. Nodes and Edges replace the whole graph.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes,omitempty"       validate:"omitempty,dive"`
	Edges       []*models.WorkflowEdge `json:"edges,omitempty"       validate:"omitempty,dive"`
}

// StartExecutionRequest is the optional body of POST /workflows/:id/executions.
type StartExecutionRequest struct {
	TriggerType string         `json:"trigger_type,omitempty" validate:"omitempty,max=64"`
	Input       map[string]any `json:"input"`
}

// CreateIntegrationRequest represents the request body for storing an integration credential.
type CreateIntegrationRequest struct {
	Owner  string            `json:"owner"  validate:"required"`
	Name   string            `json:"name"   validate:"required,min=1"`
	Type   string            `json:"type"   validate:"required"`
	Config map[string]string `json:"config" validate:"required,min=1"`
}
