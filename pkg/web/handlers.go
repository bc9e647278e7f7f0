// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/flowexec/pkg/actions/trigger"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService    *services.Workflow
	executionService   *services.Execution
	integrationService *services.Integration
	validator          *validator.Validate
	registry           *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	integrationService *services.Integration,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:    workflowService,
		executionService:   executionService,
		integrationService: integrationService,
		validator:          validator,
		registry:           registry,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := "Registry is healthy", true
	if err := h.registry.HealthCheck(c.Context()); err != nil {
		registryCheck, regOk = "Registry is unhealthy: "+err.Error(), false
	}

	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "flowexec API is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if regOk && repOk {
		status = "healthy"
		message = "flowexec API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Enabled:     req.Enabled == nil || *req.Enabled,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	}

	if workflow.Nodes == nil {
		workflow.Nodes = []*models.WorkflowNode{}
	}

	if workflow.Edges == nil {
		workflow.Edges = []*models.WorkflowEdge{}
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("id"), services.WorkflowPatch{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	report, err := h.workflowService.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.TriggerType == "" {
		req.TriggerType = trigger.Manual
	}

	record, err := h.executionService.Start(c.Context(), services.StartRequest{
		WorkflowID:  c.Params("id"),
		TriggerType: req.TriggerType,
		Input:       req.Input,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(record)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	records, err := h.executionService.List(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  records,
		"total_count": len(records),
	})
}

func (h *APIHandlers) DeleteWorkflowExecutions(c fiber.Ctx) error {
	deleted, err := h.executionService.DeleteByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	report, err := h.executionService.Status(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

// ReceiveWebhook starts an execution of a workflow that has a webhook trigger.
// The JSON body, if any, becomes the trigger input.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")

	workflow, err := h.workflowService.FetchByID(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !hasTrigger(workflow, trigger.Webhook) {
		return notFound(c, "webhook_not_found", "workflow has no webhook trigger")
	}

	input := map[string]any{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&input); err != nil {
			return badRequest(c, "Webhook body must be a JSON object")
		}
	}

	record, err := h.executionService.Start(c.Context(), services.StartRequest{
		WorkflowID:  workflow.ID,
		TriggerType: trigger.Webhook,
		Input:       input,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": record.ID,
		"status":       record.Status,
	})
}

func hasTrigger(workflow *models.Workflow, action string) bool {
	for _, node := range workflow.TriggerNodes() {
		if node.Action == action {
			return true
		}
	}

	return false
}

func (h *APIHandlers) CreateIntegration(c fiber.Ctx) error {
	var req CreateIntegrationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.integrationService.Create(c.Context(), services.CreateIntegrationRequest{
		Owner:  req.Owner,
		Name:   req.Name,
		Type:   req.Type,
		Config: req.Config,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetIntegrations(c fiber.Ctx) error {
	owner := c.Query("owner")
	if owner == "" {
		return badRequest(c, "owner query parameter is required")
	}

	integrations, err := h.integrationService.ListByOwner(c.Context(), owner)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"integrations": integrations,
		"total_count":  len(integrations),
	})
}

func (h *APIHandlers) DeleteIntegration(c fiber.Ctx) error {
	err := h.integrationService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"actions": h.registry.Descriptors(),
	})
}
