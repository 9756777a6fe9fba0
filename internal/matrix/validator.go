// Package matrix manages versioned scoring configurations: validation,
// storage and the single-active-version activation swap.
package matrix

import (
	"github.com/opensource-care/kestrel/internal/domain"
	"github.com/opensource-care/kestrel/internal/scoring"
)

// Validator checks a candidate configuration document against the indicator
// catalog and internal consistency rules before it is stored.
type Validator struct {
	engine *scoring.Engine
}

// NewValidator creates a validator backed by the scoring engine, which owns
// document-shape checks and reduction-expression compilation.
func NewValidator(engine *scoring.Engine) *Validator {
	return &Validator{engine: engine}
}

// Validate checks a document for internal consistency and against the known
// indicator set. Unknown references fail with ErrUnknownIndicator rather
// than being silently ignored: configs must be self-consistent against the
// catalog at creation time, decoupled from later indicator edits.
func (v *Validator) Validate(doc *domain.ConfigDocument, indicators []*domain.Indicator) error {
	if err := v.engine.CheckDocument(doc); err != nil {
		return err
	}

	knownIDs := make(map[string]bool, len(indicators))
	knownCategories := make(map[string]bool)
	for _, ind := range indicators {
		if !ind.Enabled {
			continue
		}
		knownIDs[ind.ID] = true
		if ind.Category != "" {
			knownCategories[ind.Category] = true
		}
	}

	for id := range doc.IndicatorWeights {
		if !knownIDs[id] {
			return domain.UnknownIndicatorError("indicatorWeights", id)
		}
	}
	for category := range doc.CategoryWeights {
		if !knownCategories[category] {
			return domain.UnknownIndicatorError("categoryWeights", category)
		}
	}
	for _, id := range doc.HardHits {
		if !knownIDs[id] {
			return domain.UnknownIndicatorError("hardHits", id)
		}
	}
	for _, id := range doc.ProtectiveIndicators {
		if !knownIDs[id] {
			return domain.UnknownIndicatorError("protectiveIndicators", id)
		}
	}

	if doc.DefaultWeight < 0 {
		return domain.Invalid("defaultWeight", "must not be negative")
	}
	for _, step := range doc.Reduction.Steps {
		if step.MinCount < 0 {
			return domain.Invalid("reduction.steps", "minCount must not be negative")
		}
		if step.Reduction < 0 {
			return domain.Invalid("reduction.steps", "reduction must not be negative")
		}
	}

	return nil
}
