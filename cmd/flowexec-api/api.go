// Package main provides the flowexec API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/dukex/flowexec/pkg/secrets"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/dukex/flowexec/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	executions  *services.Execution
	cipher      *secrets.Cipher
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	executions *services.Execution,
	cipher *secrets.Cipher,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		executions:  executions,
		cipher:      cipher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry)
	integrationService := services.NewIntegration(a.logger, a.persistence, a.cipher)

	handlers := web.NewAPIHandlers(workflowService, a.executions, integrationService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowexec API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)

	// Execution endpoints:
	w.Post("/:id/executions", handlers.StartExecution)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Delete("/:id/executions", handlers.DeleteWorkflowExecutions)
	app.Get("/executions/:id", handlers.GetExecution)

	app.Post("/webhooks/:workflowId", handlers.ReceiveWebhook)

	i := app.Group("/integrations")
	i.Post("/", handlers.CreateIntegration)
	i.Get("/", handlers.GetIntegrations)
	i.Delete("/:id", handlers.DeleteIntegration)

	app.Get("/actions", handlers.GetActions)
	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start serves the API until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
