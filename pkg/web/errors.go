package web

import (
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	return c.Status(status).JSON(problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail))
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	return problem(c, fiber.StatusNotFound, kind, detail)
}

func internalError(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err))
}

// handleServiceError maps service and persistence errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")
	case persistence.IsIntegrationNotFound(err):
		return notFound(c, "integration_not_found", "integration not found")
	}

	switch services.KindOf(err) {
	case services.KindValidation:
		return problem(c, fiber.StatusBadRequest, services.CodeOf(err, "validation_error"), err.Error())
	case services.KindConflict:
		return problem(c, fiber.StatusConflict, services.CodeOf(err, "conflict"), err.Error())
	case services.KindUnavailable:
		return problem(c, fiber.StatusServiceUnavailable, services.CodeOf(err, "encryption_unavailable"), err.Error())
	default:
		return internalError(c, err)
	}
}
