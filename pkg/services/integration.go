package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/secrets"
)

type Integration struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	cipher      *secrets.Cipher
}

// NewIntegration creates the integration service. A nil cipher disables credential storage.
func NewIntegration(logger *slog.Logger, persistence persistence.Persistence, cipher *secrets.Cipher) *Integration {
	return &Integration{
		logger:      logger.With("module", "integration_service"),
		persistence: persistence,
		cipher:      cipher,
	}
}

// IntegrationView is the API shape of an integration. Config values never leave the service:
// Create reports the key names it stored and listings carry no config at all.
type IntegrationView struct {
	models.Integration

	ConfigKeys []string `json:"config_keys,omitempty"`
}

type CreateIntegrationRequest struct {
	Owner  string
	Name   string
	Type   string
	Config map[string]string
}

// Create encrypts the config and stores the integration.
func (s *Integration) Create(ctx context.Context, req CreateIntegrationRequest) (*IntegrationView, error) {
	if s.cipher == nil {
		return nil, ErrEncryptionUnavailable
	}

	if strings.TrimSpace(req.Owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	if len(req.Config) == 0 {
		return nil, ErrIntegrationConfig
	}

	blob, err := s.cipher.SealConfig(req.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt integration config: %w", err)
	}

	integration := &models.Integration{
		Owner:  req.Owner,
		Name:   req.Name,
		Type:   req.Type,
		Config: blob,
	}

	err = s.persistence.SaveIntegration(ctx, integration)
	if err != nil {
		return nil, fmt.Errorf("failed to save integration: %w", err)
	}

	s.logger.InfoContext(ctx, "Integration created", "integration_id", integration.ID, "integration_type", integration.Type)

	return &IntegrationView{Integration: *integration, ConfigKeys: slices.Sorted(maps.Keys(req.Config))}, nil
}

// ListByOwner returns the integrations of owner. Configs stay encrypted.
func (s *Integration) ListByOwner(ctx context.Context, owner string) ([]*IntegrationView, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	integrations, err := s.persistence.IntegrationsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}

	views := make([]*IntegrationView, 0, len(integrations))

	for _, integration := range integrations {
		views = append(views, &IntegrationView{Integration: *integration})
	}

	return views, nil
}

func (s *Integration) Delete(ctx context.Context, id string) error {
	err := s.persistence.DeleteIntegration(ctx, id)
	if err != nil {
		if persistence.IsIntegrationNotFound(err) {
			return err
		}

		return fmt.Errorf("failed to delete integration: %w", err)
	}

	return nil
}
