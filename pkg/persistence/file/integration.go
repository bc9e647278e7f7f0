package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/google/uuid"
)

// integrationRecord persists the encrypted config that models.Integration never serializes.
type integrationRecord struct {
	models.Integration

	Config []byte `json:"config"`
}

func (r integrationRecord) model() *models.Integration {
	integration := r.Integration
	integration.Config = r.Config

	return &integration
}

func (fp *Persistence) SaveIntegration(_ context.Context, integration *models.Integration) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if integration.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate integration ID: %w", err)
		}

		integration.ID = id.String()
	}

	filePath, err := fp.path("integrations", integration.ID+".json")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	return writeJSON(filePath, integrationRecord{Integration: *integration, Config: integration.Config})
}

func (fp *Persistence) IntegrationByID(_ context.Context, id string) (*models.Integration, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	filePath, err := fp.path("integrations", id+".json")
	if err != nil {
		return nil, fmt.Errorf("integration %s: %w", id, persistence.ErrIntegrationNotFound)
	}

	var record integrationRecord

	found, err := readJSON(filePath, &record)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("integration %s: %w", id, persistence.ErrIntegrationNotFound)
	}

	return record.model(), nil
}

func (fp *Persistence) IntegrationsByOwner(_ context.Context, owner string) ([]*models.Integration, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	dir := filepath.Join(fp.root, "integrations")

	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}

	integrations := make([]*models.Integration, 0)

	for _, name := range files {
		var record integrationRecord

		found, err := readJSON(filepath.Join(dir, name), &record)
		if err != nil {
			return nil, err
		}

		if found && record.Owner == owner {
			integrations = append(integrations, record.model())
		}
	}

	sort.SliceStable(integrations, func(i, j int) bool {
		return integrations[i].CreatedAt.Before(integrations[j].CreatedAt)
	})

	return integrations, nil
}

func (fp *Persistence) DeleteIntegration(_ context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	filePath, err := fp.path("integrations", id+".json")
	if err != nil {
		return fmt.Errorf("integration %s: %w", id, persistence.ErrIntegrationNotFound)
	}

	err = os.Remove(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("integration %s: %w", id, persistence.ErrIntegrationNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete integration %s: %w", id, err)
	}

	return nil
}
