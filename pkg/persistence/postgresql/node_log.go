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
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// NodeLogRepository handles node execution log database operations.
type NodeLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeLogRepository creates a new node log repository.
func NewNodeLogRepository(db *sql.DB, logger *slog.Logger) *NodeLogRepository {
	return &NodeLogRepository{db: db, logger: logger}
}

// Start inserts a running log and returns its id.
func (r *NodeLogRepository) Start(ctx context.Context, executionID string, node models.WorkflowNode, input map[string]any) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate node log ID: %w", err)
	}

	inputJSON, err := marshalJSONB(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal node input: %w", err)
	}

	query := `
		INSERT INTO node_execution_logs (id, execution_id, node_id, node_name, node_type, status, input, started_at)
		VALUES ($1, $2, $3, $4, $5, 'running', $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		id.String(),
		executionID,
		node.ID,
		node.Name,
		node.Type,
		inputJSON,
		time.Now().UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", persistence.NewNodeLogError("Start", executionID, node.ID, persistence.ErrNodeAlreadyRunning)
		}

		return "", fmt.Errorf("failed to insert node log: %w", err)
	}

	return id.String(), nil
}

// Complete applies the terminal update to a running log.
func (r *NodeLogRepository) Complete(ctx context.Context, logID string, completion models.NodeLogCompletion) error {
	outputJSON, err := marshalJSONB(completion.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal node output: %w", err)
	}

	query := `
		UPDATE node_execution_logs
		SET status = $2, output = $3, error = $4, completed_at = $5, duration_ms = $6
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query,
		logID,
		completion.Status,
		outputJSON,
		completion.Error,
		completion.CompletedAt,
		completion.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to complete node log: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM node_execution_logs WHERE id = $1)", logID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check node log: %w", err)
	}

	if !exists {
		return fmt.Errorf("node log %s: %w", logID, persistence.ErrNodeLogNotFound)
	}

	return fmt.Errorf("node log %s: %w", logID, persistence.ErrNodeLogAlreadyCompleted)
}

// RecordSkipped inserts an already terminal log for a node that never ran.
func (r *NodeLogRepository) RecordSkipped(ctx context.Context, executionID string, node models.WorkflowNode, reason string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate node log ID: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO node_execution_logs (id, execution_id, node_id, node_name, node_type, status, error, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, 'skipped', $6, $7, $7, 0)
	`

	_, err = r.db.ExecContext(ctx, query, id.String(), executionID, node.ID, node.Name, node.Type, reason, now)
	if err != nil {
		return fmt.Errorf("failed to insert skipped node log: %w", err)
	}

	return nil
}

// GetByExecution returns the logs of an execution in the order they were started.
func (r *NodeLogRepository) GetByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	query := `
		SELECT id, execution_id, node_id, node_name, node_type, status, input, output, error, started_at, completed_at, duration_ms
		FROM node_execution_logs
		WHERE execution_id = $1
		ORDER BY started_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.NodeExecutionLog, 0)

	for rows.Next() {
		var (
			entry                 models.NodeExecutionLog
			inputJSON, outputJSON []byte
			completedAt           sql.NullTime
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.NodeID,
			&entry.NodeName,
			&entry.NodeType,
			&entry.Status,
			&inputJSON,
			&outputJSON,
			&entry.Error,
			&entry.StartedAt,
			&completedAt,
			&entry.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node log: %w", err)
		}

		entry.Input, err = unmarshalJSONB(inputJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node input: %w", err)
		}

		entry.Output, err = unmarshalJSONB(outputJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node output: %w", err)
		}

		if completedAt.Valid {
			t := completedAt.Time
			entry.CompletedAt = &t
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node logs: %w", err)
	}

	return logs, nil
}
