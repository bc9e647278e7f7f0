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

// IntegrationRepository handles integration credential database operations.
// Config is stored as the encrypted blob it arrives as.
type IntegrationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewIntegrationRepository creates a new integration repository.
func NewIntegrationRepository(db *sql.DB, logger *slog.Logger) *IntegrationRepository {
	return &IntegrationRepository{db: db, logger: logger}
}

func (r *IntegrationRepository) Save(ctx context.Context, integration *models.Integration) error {
	now := time.Now().UTC()

	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	if integration.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate integration ID: %w", err)
		}

		integration.ID = id.String()
	}

	query := `
		INSERT INTO integrations (id, owner, name, type, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		integration.ID,
		integration.Owner,
		integration.Name,
		integration.Type,
		integration.Config,
		integration.CreatedAt,
		integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save integration: %w", err)
	}

	return nil
}

func (r *IntegrationRepository) GetByID(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT id, owner, name, type, config, created_at, updated_at
		FROM integrations
		WHERE id = $1
	`

	integration, err := r.scanIntegration(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("integration %s: %w", id, persistence.ErrIntegrationNotFound)
		}

		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}

	return integration, nil
}

func (r *IntegrationRepository) GetByOwner(ctx context.Context, owner string) ([]*models.Integration, error) {
	query := `
		SELECT id, owner, name, type, config, created_at, updated_at
		FROM integrations
		WHERE owner = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	integrations := make([]*models.Integration, 0)

	for rows.Next() {
		integration, err := r.scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}

		integrations = append(integrations, integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

func (r *IntegrationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM integrations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("integration %s: %w", id, persistence.ErrIntegrationNotFound)
	}

	return nil
}

func (r *IntegrationRepository) scanIntegration(row scanner) (*models.Integration, error) {
	var integration models.Integration

	err := row.Scan(
		&integration.ID,
		&integration.Owner,
		&integration.Name,
		&integration.Type,
		&integration.Config,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &integration, nil
}
