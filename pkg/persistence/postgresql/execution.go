package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository handles execution record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a running execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.ExecutionRecord) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	if execution.Status == "" {
		execution.Status = models.ExecutionStatusRunning
	}

	inputJSON, err := marshalJSONB(execution.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal execution input: %w", err)
	}

	outputJSON, err := marshalJSONB(execution.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal execution output: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, owner, status, input, output, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Owner,
		execution.Status,
		inputJSON,
		outputJSON,
		execution.Error,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

// GetByID returns the execution or ErrExecutionNotFound.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	query := `
		SELECT id, workflow_id, owner, status, input, output, error, started_at, completed_at
		FROM executions
		WHERE id = $1
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// GetByWorkflow returns the executions of a workflow, newest first.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT id, workflow_id, owner, status, input, output, error, started_at, completed_at
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// Complete applies the terminal update to a running execution.
func (r *ExecutionRepository) Complete(ctx context.Context, executionID string, completion models.ExecutionCompletion) error {
	outputJSON, err := marshalJSONB(completion.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal execution output: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2, output = $3, error = $4, completed_at = $5
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query,
		executionID,
		completion.Status,
		outputJSON,
		completion.Error,
		completion.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", executionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution: %w", err)
	}

	if !exists {
		return persistence.NewExecutionError("Complete", executionID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewExecutionError("Complete", executionID, persistence.ErrExecutionAlreadyCompleted)
}

// DeleteByWorkflow removes the node logs and then the executions of a workflow in one transaction.
func (r *ExecutionRepository) DeleteByWorkflow(ctx context.Context, workflowID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM node_execution_logs
		WHERE execution_id IN (SELECT id FROM executions WHERE workflow_id = $1)
	`, workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete node logs: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM executions WHERE workflow_id = $1", workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return int(deleted), nil
}

func (r *ExecutionRepository) scanExecution(row scanner) (*models.ExecutionRecord, error) {
	var (
		execution             models.ExecutionRecord
		inputJSON, outputJSON []byte
		completedAt           sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Owner,
		&execution.Status,
		&inputJSON,
		&outputJSON,
		&execution.Error,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Input, err = unmarshalJSONB(inputJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution input: %w", err)
	}

	execution.Output, err = unmarshalJSONB(outputJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution output: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		execution.CompletedAt = &t
	}

	return &execution, nil
}
