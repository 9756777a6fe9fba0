// Package scoring implements the pure case-risk scoring engine.
//
// Evaluate is a deterministic function of (tags, configuration): no I/O, no
// clock, no randomness. Recomputing with the same inputs yields a
// byte-identical result, which is what makes snapshots auditable.
package scoring

import (
	"math"
	"sort"

	"github.com/opensource-care/kestrel/internal/domain"
)

// Engine evaluates resolved tags against a matrix configuration.
// It is stateless apart from a cache of compiled reduction expressions and
// is safe for concurrent use.
type Engine struct {
	reductions *reductionCompiler
}

// NewEngine creates a new scoring engine.
func NewEngine() (*Engine, error) {
	rc, err := newReductionCompiler()
	if err != nil {
		return nil, err
	}
	return &Engine{reductions: rc}, nil
}

// CheckDocument validates the scoring-relevant parts of a document: field
// shape, threshold ordering, reduction bounds and reduction-expression
// compilation. Catalog consistency is the config validator's concern.
func (e *Engine) CheckDocument(doc *domain.ConfigDocument) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	if doc.Reduction.Kind == domain.ReductionExpression {
		if _, err := e.reductions.compile(doc.Reduction.Expression); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate computes the score breakdown and traffic-light classification for
// a case's resolved tags under the given configuration.
//
// The document is re-checked defensively even though the validator ran at
// creation time: the engine must be safe to call in isolation.
func (e *Engine) Evaluate(tags []domain.ResolvedTag, cfg domain.MatrixConfig) (*domain.ScoreResult, error) {
	if err := checkDocument(&cfg.Document); err != nil {
		return nil, err
	}
	doc := &cfg.Document

	result := &domain.ScoreResult{
		Contributions: []domain.Contribution{},
		Dimensions:    []domain.DimensionSubtotal{},
	}

	// Contributions and dimension subtotals. Severity outside the valid
	// range never reaches the engine (resolution clamps to defaults), but
	// the contribution formula tolerates any integer.
	subtotals := make(map[string]*domain.DimensionSubtotal)
	var protectiveCount int
	var protectivePoints float64

	for _, tag := range tags {
		weight := doc.WeightFor(tag.IndicatorID, tag.Category)
		dimension := doc.DimensionFor(tag.Category)
		points := float64(tag.Severity) * weight

		result.Contributions = append(result.Contributions, domain.Contribution{
			IndicatorID: tag.IndicatorID,
			Dimension:   dimension,
			Severity:    tag.Severity,
			Weight:      weight,
			Points:      points,
		})

		sub, ok := subtotals[dimension]
		if !ok {
			sub = &domain.DimensionSubtotal{Dimension: dimension}
			subtotals[dimension] = sub
		}
		sub.Subtotal += points
		sub.TagCount++
		result.RawScore += points

		if doc.IsHardHit(tag.IndicatorID) {
			result.HardHits = append(result.HardHits, domain.HardHit{
				IndicatorID: tag.IndicatorID,
				Label:       tag.Label,
			})
		}
		if doc.IsProtective(tag.IndicatorID) {
			protectiveCount++
			protectivePoints += points
		}
	}

	// Deterministic ordering: dimensions alphabetically with OTHER last,
	// contributions by (dimension, indicator), hard hits by indicator.
	for _, sub := range subtotals {
		result.Dimensions = append(result.Dimensions, *sub)
	}
	sort.Slice(result.Dimensions, func(i, j int) bool {
		return dimLess(result.Dimensions[i].Dimension, result.Dimensions[j].Dimension)
	})
	sort.Slice(result.Contributions, func(i, j int) bool {
		a, b := result.Contributions[i], result.Contributions[j]
		if a.Dimension != b.Dimension {
			return dimLess(a.Dimension, b.Dimension)
		}
		return a.IndicatorID < b.IndicatorID
	})
	sort.Slice(result.HardHits, func(i, j int) bool {
		return result.HardHits[i].IndicatorID < result.HardHits[j].IndicatorID
	})

	// Protective reduction, recorded separately so raw score and
	// reduction both stay visible in the rationale.
	amount, err := e.reductions.apply(doc, result.RawScore, protectiveCount, protectivePoints)
	if err != nil {
		return nil, err
	}
	result.Reduction = domain.ReductionDetail{
		Kind:             reductionKind(doc),
		ProtectiveCount:  protectiveCount,
		ProtectivePoints: protectivePoints,
		Amount:           amount,
	}
	result.ProtectiveReduction = amount

	final := result.RawScore - amount
	if final < 0 {
		final = 0
	}
	result.FinalScore = roundTo(final, doc.EffectivePrecision())

	// Hard hits force RED regardless of the computed score; the numbers
	// above are still reported for transparency.
	if len(result.HardHits) > 0 {
		result.TrafficLight = domain.LightRed
	} else {
		result.TrafficLight = classify(result.FinalScore, doc.Thresholds)
	}

	return result, nil
}

// classify maps a final score to its band. Boundaries are inclusive on the
// lower bound: score >= Red is RED, else score >= Yellow is YELLOW, else
// GREEN.
func classify(score float64, t domain.Thresholds) domain.TrafficLight {
	switch {
	case score >= t.Red:
		return domain.LightRed
	case score >= t.Yellow:
		return domain.LightYellow
	default:
		return domain.LightGreen
	}
}

// checkDocument is the engine's defensive subset of the full validation:
// the fields without which scoring cannot proceed at all. Catalog
// consistency is the validator's job at creation time.
func checkDocument(doc *domain.ConfigDocument) error {
	if !(doc.Thresholds.Green < doc.Thresholds.Yellow && doc.Thresholds.Yellow < doc.Thresholds.Red) {
		return domain.Invalid("thresholds", "must satisfy green < yellow < red")
	}
	if len(doc.IndicatorWeights) == 0 && len(doc.CategoryWeights) == 0 && doc.DefaultWeight == 0 {
		return domain.Invalid("weights", "no indicator or category weights configured")
	}
	switch doc.Reduction.Kind {
	case "", domain.ReductionNone, domain.ReductionStepped:
	case domain.ReductionPercent:
		if doc.Reduction.Percent < 0 || doc.Reduction.Percent > 100 {
			return domain.Invalid("reduction.percent", "must be within [0,100]")
		}
		if doc.Reduction.MaxPercent < 0 || doc.Reduction.MaxPercent > 100 {
			return domain.Invalid("reduction.maxPercent", "must be within [0,100]")
		}
	case domain.ReductionExpression:
		if doc.Reduction.Expression == "" {
			return domain.Invalid("reduction.expression", "expression is required")
		}
	default:
		return domain.Invalid("reduction.kind", doc.Reduction.Kind)
	}
	return nil
}

func reductionKind(doc *domain.ConfigDocument) string {
	if doc.Reduction.Kind == "" {
		return domain.ReductionNone
	}
	return doc.Reduction.Kind
}

// roundTo rounds half away from zero at the given number of decimals. The
// integer-scaled round keeps repeated evaluations byte-identical.
func roundTo(v float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}

// dimLess orders dimensions alphabetically with the OTHER catch-all last.
func dimLess(a, b string) bool {
	if a == domain.DimensionOther {
		return false
	}
	if b == domain.DimensionOther {
		return true
	}
	return a < b
}
