package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowexec/pkg/eventbus"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/dukex/flowexec/pkg/secrets"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/dukex/flowexec/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// ExecutionMode selects where started executions run.
type ExecutionMode string

const (
	// ExecutionInline runs graphs in the current process.
	ExecutionInline ExecutionMode = "inline"
	// ExecutionDispatch publishes workflow.triggered events for workers and runs nothing locally.
	ExecutionDispatch ExecutionMode = "dispatch"
	// ExecutionWorker runs dispatched graphs and publishes their outcome.
	ExecutionWorker ExecutionMode = "worker"
)

// ExecutionModeFor picks the mode for a process that starts executions:
// the in-process bus has no remote workers, so it runs inline.
func ExecutionModeFor(eventBusProvider string) ExecutionMode {
	if eventBusProvider == "" || eventBusProvider == "gochannel" {
		return ExecutionInline
	}

	return ExecutionDispatch
}

// ExecutionDeps groups what NewExecutionService needs.
type ExecutionDeps struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Publisher   eventbus.EventPublisher
	Cipher      *secrets.Cipher
	Tracer      trace.Tracer
}

// NewExecutionService wires the execution service and, unless mode is dispatch, its executor.
func NewExecutionService(mode ExecutionMode, deps ExecutionDeps) (*services.Execution, *workflow.Executor, error) {
	if mode == ExecutionDispatch {
		if deps.Publisher == nil {
			return nil, nil, fmt.Errorf("execution mode %s requires an event bus", mode)
		}

		return services.NewExecution(deps.Logger, deps.Persistence, nil, services.WithPublisher(deps.Publisher)), nil, nil
	}

	var service *services.Execution

	opts := []workflow.Option{}

	if deps.Cipher != nil {
		opts = append(opts, workflow.WithCredentials(
			secrets.NewCredentialStore(deps.Logger, deps.Persistence, deps.Cipher),
		))
	}

	if deps.Tracer != nil {
		opts = append(opts, workflow.WithTracer(deps.Tracer))
	}

	switch mode {
	case ExecutionInline:
	case ExecutionWorker:
		if deps.Publisher == nil {
			return nil, nil, fmt.Errorf("execution mode %s requires an event bus", mode)
		}

		opts = append(opts, workflow.WithCompletionHook(func(ctx context.Context, summary *workflow.Summary) {
			service.Notify(ctx, summary)
		}))
	default:
		return nil, nil, fmt.Errorf("unsupported execution mode: %s", mode)
	}

	executor := workflow.NewExecutor(deps.Logger, deps.Registry, deps.Persistence, deps.Persistence, opts...)

	var serviceOpts []services.ExecutionOption
	if mode == ExecutionWorker {
		serviceOpts = append(serviceOpts, services.WithPublisher(deps.Publisher))
	}

	service = services.NewExecution(deps.Logger, deps.Persistence, executor, serviceOpts...)

	return service, executor, nil
}
