// Package catalog manages the tenant indicator catalog and resolves case
// tags against it.
package catalog

import (
	"context"
	"fmt"

	"github.com/opensource-care/kestrel/internal/domain"
)

// Service provides indicator catalog and case tag operations.
type Service struct {
	repo domain.Repository
}

// NewService creates a catalog service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// SaveIndicator creates or updates an indicator. Indicators are disable-only
// after creation; there is no delete.
func (s *Service) SaveIndicator(ctx context.Context, tenantID string, ind *domain.Indicator) error {
	if ind.ID == "" {
		return domain.Invalid("id", "must not be empty")
	}
	if ind.Label == "" {
		return domain.Invalid("label", "must not be empty")
	}
	if ind.DefaultSeverity != nil && !domain.ValidSeverity(*ind.DefaultSeverity) {
		return domain.Invalid("defaultSeverity",
			fmt.Sprintf("must be within [%d,%d]", domain.SeverityMin, domain.SeverityMax))
	}

	return s.repo.SaveIndicator(ctx, tenantID, ind)
}

// GetIndicator returns one indicator.
func (s *Service) GetIndicator(ctx context.Context, tenantID, indicatorID string) (*domain.Indicator, error) {
	return s.repo.GetIndicator(ctx, tenantID, indicatorID)
}

// ListIndicators returns the tenant's indicators in display order.
func (s *Service) ListIndicators(ctx context.Context, tenantID string, includeDisabled bool) ([]*domain.Indicator, error) {
	return s.repo.ListIndicators(ctx, tenantID, includeDisabled)
}

// DisableIndicator disables an indicator without removing it, keeping
// historical snapshots interpretable.
func (s *Service) DisableIndicator(ctx context.Context, tenantID, indicatorID string) error {
	return s.repo.DisableIndicator(ctx, tenantID, indicatorID)
}

// PutTag attaches an indicator to a case or replaces the severity override
// of an existing tag.
func (s *Service) PutTag(ctx context.Context, tenantID, caseID, indicatorID string, severity *int) error {
	if severity != nil && !domain.ValidSeverity(*severity) {
		return domain.Invalid("severity",
			fmt.Sprintf("must be within [%d,%d]", domain.SeverityMin, domain.SeverityMax))
	}

	// The indicator must exist; disabled indicators can no longer be
	// tagged, existing tags on them keep resolving.
	ind, err := s.repo.GetIndicator(ctx, tenantID, indicatorID)
	if err != nil {
		return err
	}
	if !ind.Enabled {
		return fmt.Errorf("%w: indicator %s is disabled", domain.ErrNotFound, indicatorID)
	}

	return s.repo.PutCaseTag(ctx, tenantID, &domain.CaseTag{
		TenantID:    tenantID,
		CaseID:      caseID,
		IndicatorID: indicatorID,
		Severity:    severity,
	})
}

// RemoveTag detaches an indicator from a case.
func (s *Service) RemoveTag(ctx context.Context, tenantID, caseID, indicatorID string) error {
	return s.repo.DeleteCaseTag(ctx, tenantID, caseID, indicatorID)
}
