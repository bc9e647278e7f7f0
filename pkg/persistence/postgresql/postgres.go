// Package postgresql provides PostgreSQL persistence implementation for workflows, executions and integrations.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

var _ persistence.Persistence = (*Persistence)(nil)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sql.DB
	logger          *slog.Logger
	workflowRepo    *WorkflowRepository
	executionRepo   *ExecutionRepository
	nodeLogRepo     *NodeLogRepository
	integrationRepo *IntegrationRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:              database,
		logger:          logger,
		workflowRepo:    NewWorkflowRepository(database, logger),
		executionRepo:   NewExecutionRepository(database, logger),
		nodeLogRepo:     NewNodeLogRepository(database, logger),
		integrationRepo: NewIntegrationRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Workflows returns the workflows of owner, or every workflow when owner is empty.
func (p *Persistence) Workflows(ctx context.Context, owner string) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx, owner)
}

// WorkflowByID returns a workflow by its ID.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

// SaveWorkflow saves a workflow to the database.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

// DeleteWorkflow soft deletes a workflow by setting deleted_at timestamp.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

func (p *Persistence) CreateExecution(ctx context.Context, execution *models.ExecutionRecord) error {
	return p.executionRepo.Create(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	return p.executionRepo.GetByWorkflow(ctx, workflowID)
}

func (p *Persistence) CompleteExecution(ctx context.Context, executionID string, completion models.ExecutionCompletion) error {
	return p.executionRepo.Complete(ctx, executionID, completion)
}

func (p *Persistence) DeleteExecutionsByWorkflow(ctx context.Context, workflowID string) (int, error) {
	return p.executionRepo.DeleteByWorkflow(ctx, workflowID)
}

func (p *Persistence) StartNodeLog(ctx context.Context, executionID string, node models.WorkflowNode, input map[string]any) (string, error) {
	return p.nodeLogRepo.Start(ctx, executionID, node, input)
}

func (p *Persistence) CompleteNodeLog(ctx context.Context, logID string, completion models.NodeLogCompletion) error {
	return p.nodeLogRepo.Complete(ctx, logID, completion)
}

func (p *Persistence) RecordSkippedNode(ctx context.Context, executionID string, node models.WorkflowNode, reason string) error {
	return p.nodeLogRepo.RecordSkipped(ctx, executionID, node, reason)
}

func (p *Persistence) NodeLogsByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	return p.nodeLogRepo.GetByExecution(ctx, executionID)
}

func (p *Persistence) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	return p.integrationRepo.Save(ctx, integration)
}

func (p *Persistence) IntegrationByID(ctx context.Context, id string) (*models.Integration, error) {
	return p.integrationRepo.GetByID(ctx, id)
}

func (p *Persistence) IntegrationsByOwner(ctx context.Context, owner string) ([]*models.Integration, error) {
	return p.integrationRepo.GetByOwner(ctx, owner)
}

func (p *Persistence) DeleteIntegration(ctx context.Context, id string) error {
	return p.integrationRepo.Delete(ctx, id)
}

// marshalJSONB encodes a map for a JSONB column. A nil map is stored as SQL NULL.
func marshalJSONB(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}

func unmarshalJSONB(data []byte) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}

	var value map[string]any

	err := json.Unmarshal(data, &value)
	if err != nil {
		return nil, err
	}

	return value, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
