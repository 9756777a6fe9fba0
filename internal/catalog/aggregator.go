package catalog

import (
	"context"
	"fmt"

	"github.com/opensource-care/kestrel/internal/domain"
)

// ResolveTags reads the current tag set for a case and joins each tag
// against the indicator catalog: category and label are looked up at
// resolution time, never cached on the tag, and the effective severity is
// the tag override, else the indicator default, else 1. Disabled indicators
// still resolve so that old tags stay interpretable.
//
// Pure read, no caching across calls: tags can change between evaluations
// and each evaluation must reflect current state.
func (s *Service) ResolveTags(ctx context.Context, tenantID, caseID string) ([]domain.ResolvedTag, error) {
	tags, err := s.repo.ListCaseTags(ctx, tenantID, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case tags: %w", err)
	}
	if len(tags) == 0 {
		return []domain.ResolvedTag{}, nil
	}

	indicators, err := s.repo.ListIndicators(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load indicator catalog: %w", err)
	}

	byID := make(map[string]*domain.Indicator, len(indicators))
	for _, ind := range indicators {
		byID[ind.ID] = ind
	}

	resolved := make([]domain.ResolvedTag, 0, len(tags))
	for _, tag := range tags {
		rt := domain.ResolvedTag{
			IndicatorID: tag.IndicatorID,
			Severity:    domain.DefaultSeverity,
		}

		if ind, ok := byID[tag.IndicatorID]; ok {
			rt.Label = ind.Label
			rt.Category = ind.Category
			if ind.DefaultSeverity != nil {
				rt.Severity = *ind.DefaultSeverity
			}
		}
		if tag.Severity != nil {
			rt.Severity = *tag.Severity
		}

		resolved = append(resolved, rt)
	}

	return resolved, nil
}
