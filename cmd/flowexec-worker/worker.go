// Package main provides the flowexec worker that runs executions dispatched through the event bus.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowexec/pkg/eventbus"
	"github.com/dukex/flowexec/pkg/events"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/dukex/flowexec/pkg/workflow"
)

type Worker struct {
	id         string
	logger     *slog.Logger
	eventBus   eventbus.EventSubscriber
	executions *services.Execution
	executor   *workflow.Executor
}

func NewWorker(
	id string,
	logger *slog.Logger,
	eventBus eventbus.EventSubscriber,
	executions *services.Execution,
	executor *workflow.Executor,
) *Worker {
	return &Worker{
		id:         id,
		logger:     logger.With("worker_id", id),
		eventBus:   eventBus,
		executions: executions,
		executor:   executor,
	}
}

// Start registers the handlers and begins consuming in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker subscriptions")

	err := eventbus.On(w.eventBus, events.WorkflowTriggeredEvent, w.handleWorkflowTriggered)
	if err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// Run starts the worker and blocks until ctx is done and every run it accepted has finished.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	w.logger.Info("Shutting down worker, waiting for running executions")
	w.executor.Wait()

	return nil
}

func (w *Worker) handleWorkflowTriggered(ctx context.Context, triggered *events.WorkflowTriggered) error {
	w.logger.InfoContext(ctx, "Running dispatched execution",
		"execution_id", triggered.ExecutionID,
		"workflow_id", triggered.WorkflowID,
		"trigger_type", triggered.TriggerType,
	)

	return w.executions.HandleTriggered(ctx, triggered)
}
