package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-care/kestrel/internal/domain"
)

// Store is the matrix configuration store: versioned history per tenant,
// with validation at the creation boundary. Activation lives in the
// ActivationManager so the invariant-guarding logic stays in one place.
type Store struct {
	repo      domain.Repository
	validator *Validator
}

// NewStore creates a configuration store.
func NewStore(repo domain.Repository, validator *Validator) *Store {
	return &Store{repo: repo, validator: validator}
}

// Create validates and stores a new configuration version. The new version
// is not activated. Re-validates even when the caller already ran the
// validator: never trust a caller skipped validation.
func (s *Store) Create(ctx context.Context, tenantID, version string, doc domain.ConfigDocument, createdBy string) (*domain.MatrixConfig, error) {
	if version == "" {
		return nil, domain.Invalid("version", "must not be empty")
	}

	indicators, err := s.repo.ListIndicators(ctx, tenantID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load indicator catalog: %w", err)
	}

	if err := s.validator.Validate(&doc, indicators); err != nil {
		return nil, err
	}

	cfg := &domain.MatrixConfig{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Version:   version,
		Document:  doc,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.CreateConfig(ctx, tenantID, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetActive returns the tenant's active configuration or ErrNoActiveConfig.
func (s *Store) GetActive(ctx context.Context, tenantID string) (*domain.MatrixConfig, error) {
	return s.repo.GetActiveConfig(ctx, tenantID)
}

// Get returns a configuration by surrogate id.
func (s *Store) Get(ctx context.Context, tenantID, configID string) (*domain.MatrixConfig, error) {
	return s.repo.GetConfig(ctx, tenantID, configID)
}

// History returns the tenant's configuration versions, newest first.
func (s *Store) History(ctx context.Context, tenantID string) ([]*domain.MatrixConfig, error) {
	return s.repo.ListConfigs(ctx, tenantID)
}
