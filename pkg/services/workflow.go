package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowexec/pkg/graph"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/dukex/flowexec/pkg/template"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the workflows of owner, or every workflow when owner is empty.
func (w *Workflow) List(ctx context.Context, owner string) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx, strings.TrimSpace(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowByID(ctx, id)
}

// Create adds a new workflow to the repository. Graph problems do not block saving;
// they are reported by Validate and fail the execution at run time.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	if strings.TrimSpace(workflow.Owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	assignEdgeIDs(workflow)

	err := w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// WorkflowPatch carries a partial update; nil fields are left untouched.
type WorkflowPatch struct {
	Name        *string
	Description *string
	Enabled     *bool
	Nodes       []*models.WorkflowNode
	Edges       []*models.WorkflowEdge
}

// Update applies patch to an existing workflow by its ID.
func (w *Workflow) Update(ctx context.Context, workflowID string, patch WorkflowPatch) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, ErrWorkflowNameRequired
		}

		existing.Name = *patch.Name
	}

	if patch.Description != nil {
		existing.Description = *patch.Description
	}

	if patch.Enabled != nil {
		existing.Enabled = *patch.Enabled
	}

	if patch.Nodes != nil {
		existing.Nodes = patch.Nodes
	}

	if patch.Edges != nil {
		existing.Edges = patch.Edges
	}

	assignEdgeIDs(existing)

	err = w.persistence.SaveWorkflow(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return existing, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	err := w.persistence.DeleteWorkflow(ctx, workflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return err
		}

		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// ValidationReport is the result of checking a workflow without running it.
// Errors make an execution fail; warnings point at likely authoring mistakes.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Order    []string `json:"order,omitempty"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks ordering, handler registration, node configs and template references.
func (w *Workflow) Validate(ctx context.Context, workflowID string) (*ValidationReport, error) {
	workflow, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return w.ValidateGraph(workflow.Graph()), nil
}

// ValidateGraph checks a graph snapshot.
func (w *Workflow) ValidateGraph(g models.Graph) *ValidationReport {
	report := &ValidationReport{Errors: []string{}, Warnings: []string{}}

	index, err := graph.NewIndex(g)
	if err == nil {
		report.Order, err = index.Order()
	}

	if err != nil {
		report.Errors = append(report.Errors, err.Error())

		return report
	}

	triggers := 0

	for _, node := range g.Nodes {
		if node.IsTrigger() {
			triggers++
		}

		w.checkHandler(report, node)
		checkBranches(report, index, node)
		checkReferences(report, index, node)
	}

	if triggers == 0 {
		report.Warnings = append(report.Warnings, "workflow has no trigger node")
	}

	report.Valid = len(report.Errors) == 0

	return report
}

func (w *Workflow) checkHandler(report *ValidationReport, node models.WorkflowNode) {
	if w.registry == nil {
		return
	}

	key := registry.KeyFor(node)

	if _, err := w.registry.Lookup(key); err != nil {
		if !node.IsTrigger() {
			report.Errors = append(report.Errors, fmt.Sprintf("node %s: %v", node.ID, err))
		}

		return
	}

	if err := w.registry.ValidateConfig(key, node.Config); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("node %s: %v", node.ID, err))
	}
}

func checkBranches(report *ValidationReport, index *graph.Index, node models.WorkflowNode) {
	for _, edge := range index.Outgoing(node.ID) {
		switch {
		case node.IsCondition() && edge.Label == "":
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("edge %s leaves condition %s without a true/false label and always runs", edge.ID, node.ID))
		case !node.IsCondition() && edge.Label != "":
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("edge %s has label %q but %s is not a condition", edge.ID, edge.Label, node.ID))
		}
	}
}

// checkReferences warns about {{Name.path}} references to nodes that are not upstream.
func checkReferences(report *ValidationReport, index *graph.Index, node models.WorkflowNode) {
	ancestors := ancestorNames(index, node.ID)

	for key, value := range node.Config {
		s, ok := value.(string)
		if !ok {
			continue
		}

		for _, ref := range template.References(s) {
			if referencesAny(ref.Expr, ancestors) {
				continue
			}

			report.Warnings = append(report.Warnings,
				fmt.Sprintf("node %s config %q references %s, which is not an upstream node output", node.ID, key, ref.Raw))
		}
	}
}

func referencesAny(expr string, names []string) bool {
	for _, name := range names {
		if expr == name || strings.HasPrefix(expr, name+".") || strings.HasPrefix(expr, name+"[") {
			return true
		}
	}

	return false
}

// ancestorNames returns the names of every node upstream of id.
func ancestorNames(index *graph.Index, id string) []string {
	var names []string

	seen := map[string]bool{id: true}
	queue := []string{id}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range index.Incoming(current) {
			if seen[edge.Source] {
				continue
			}

			seen[edge.Source] = true
			queue = append(queue, edge.Source)

			if source, ok := index.Node(edge.Source); ok {
				names = append(names, source.Name)
			}
		}
	}

	return names
}

func assignEdgeIDs(workflow *models.Workflow) {
	for i, edge := range workflow.Edges {
		if edge != nil && edge.ID == "" {
			edge.ID = fmt.Sprintf("%s->%s#%d", edge.Source, edge.Target, i)
		}
	}
}
