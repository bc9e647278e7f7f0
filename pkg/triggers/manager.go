// Package triggers keeps schedule and queue triggers running for every enabled workflow.
package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/services"
)

// WorkflowLister returns the workflows whose triggers should run.
type WorkflowLister interface {
	List(ctx context.Context, owner string) ([]*models.Workflow, error)
}

// Starter starts an execution for trigger input.
type Starter interface {
	Start(ctx context.Context, req services.StartRequest) (*models.ExecutionRecord, error)
}

type running struct {
	trigger     protocol.Trigger
	fingerprint string
}

type Manager struct {
	logger    *slog.Logger
	workflows WorkflowLister
	starter   Starter
	factories protocol.TriggerFactories

	mu      sync.Mutex
	running map[string]running
}

func NewManager(
	logger *slog.Logger,
	workflows WorkflowLister,
	starter Starter,
	factories ...protocol.TriggerFactory,
) *Manager {
	m := &Manager{
		logger:    logger.With("module", "trigger_manager"),
		workflows: workflows,
		starter:   starter,
		factories: protocol.NewTriggerFactories(factories...),
		running:   make(map[string]running),
	}

	return m
}

// Run syncs triggers now and then on every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if err := m.Sync(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.StopAll(context.WithoutCancel(ctx))

			return nil
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil {
				m.logger.ErrorContext(ctx, "Failed to sync triggers", "error", err)
			}
		}
	}
}

// Sync starts triggers of enabled workflows that are not running yet, restarts
// triggers whose config changed and stops triggers that are no longer wanted.
func (m *Manager) Sync(ctx context.Context) error {
	workflows, err := m.workflows.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to fetch workflows: %w", err)
	}

	wanted := make(map[string]*models.WorkflowNode)
	owners := make(map[string]string)

	for _, wf := range workflows {
		if !wf.Enabled {
			continue
		}

		for _, node := range wf.TriggerNodes() {
			if !m.factories.Supports(node.Action) {
				continue
			}

			key := wf.ID + "/" + node.ID
			wanted[key] = node
			owners[key] = wf.ID
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, r := range m.running {
		node, ok := wanted[key]
		if ok && fingerprint(node) == r.fingerprint {
			delete(wanted, key)

			continue
		}

		m.stop(ctx, key, r)
	}

	for key, node := range wanted {
		m.start(ctx, key, owners[key], node)
	}

	return nil
}

func (m *Manager) start(ctx context.Context, key, workflowID string, node *models.WorkflowNode) {
	logger := m.logger.With("workflow_id", workflowID, "node_id", node.ID, "trigger_type", node.Action)

	trigger, err := m.factories.Build(node.Action, node.Config, logger)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create trigger", "error", err)

		return
	}

	err = trigger.Start(ctx, m.callback(workflowID, node.Action))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start trigger", "error", err)

		return
	}

	m.running[key] = running{trigger: trigger, fingerprint: fingerprint(node)}

	logger.InfoContext(ctx, "Started trigger")
}

func (m *Manager) stop(ctx context.Context, key string, r running) {
	if err := r.trigger.Stop(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Error stopping trigger", "trigger", key, "error", err)
	}

	delete(m.running, key)
}

// StopAll stops every running trigger.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, r := range m.running {
		m.stop(ctx, key, r)
	}
}

// Running returns the number of running triggers.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.running)
}

func (m *Manager) callback(workflowID, triggerType string) protocol.TriggerCallback {
	return func(ctx context.Context, data map[string]any) error {
		record, err := m.starter.Start(ctx, services.StartRequest{
			WorkflowID:  workflowID,
			TriggerType: triggerType,
			Input:       data,
		})
		if err != nil {
			return fmt.Errorf("failed to start workflow %s: %w", workflowID, err)
		}

		m.logger.InfoContext(ctx, "Workflow triggered",
			"workflow_id", workflowID,
			"trigger_type", triggerType,
			"execution_id", record.ID)

		return nil
	}
}

func fingerprint(node *models.WorkflowNode) string {
	b, err := json.Marshal(node.Config)
	if err != nil {
		return ""
	}

	return node.Action + string(b)
}
