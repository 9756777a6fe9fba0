package domain

import "time"

// TrafficLight is the three-band risk classification.
type TrafficLight string

const (
	LightGreen  TrafficLight = "GREEN"
	LightYellow TrafficLight = "YELLOW"
	LightRed    TrafficLight = "RED"
)

// DimensionOther collects contributions from indicators whose category is
// empty or not declared in the configuration. Unmatched indicators are never
// rejected; they contribute at the document's default weight.
const DimensionOther = "OTHER"

// MatrixConfig is one immutable, versioned scoring configuration owned by a
// tenant ("Traeger"). Exactly one configuration per tenant is active at any
// moment; changing rules means creating a new version and activating it.
// Configurations are never deleted so that every snapshot's config reference
// keeps resolving.
type MatrixConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Version  string `json:"version"`
	Active   bool   `json:"active"`

	Document ConfigDocument `json:"document"`

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ConfigDocument is the tenant-authored scoring policy. It is stored as JSON
// but validated into this typed shape at the boundary.
type ConfigDocument struct {
	// IndicatorWeights maps indicator ids to weights. An indicator weight
	// takes precedence over its category weight.
	IndicatorWeights map[string]float64 `json:"indicatorWeights,omitempty"`

	// CategoryWeights maps category names to weights applied to every
	// tagged indicator of that category without an indicator weight.
	CategoryWeights map[string]float64 `json:"categoryWeights,omitempty"`

	// DefaultWeight applies to tags matched by neither map. Zero means
	// such tags contribute nothing.
	DefaultWeight float64 `json:"defaultWeight,omitempty"`

	// HardHits lists indicator ids whose mere presence forces RED,
	// bypassing the numeric score.
	HardHits []string `json:"hardHits,omitempty"`

	// ProtectiveIndicators lists indicator ids counted by the reduction
	// policy. Protective tags still contribute their weighted score; the
	// reduction is applied to the raw total and reported separately.
	ProtectiveIndicators []string `json:"protectiveIndicators,omitempty"`

	Reduction  ReductionPolicy `json:"reduction"`
	Thresholds Thresholds      `json:"thresholds"`

	// Precision is the number of decimal places for the final score.
	// Zero value means DefaultPrecision.
	Precision int `json:"precision,omitempty"`
}

// DefaultPrecision is the decimal precision used when a document does not
// declare one.
const DefaultPrecision = 2

// Thresholds are the band boundaries. Boundaries are inclusive on the lower
// bound of each band: score >= Red is RED, else score >= Yellow is YELLOW,
// else GREEN. The validator enforces Green < Yellow < Red.
type Thresholds struct {
	Green  float64 `json:"green"`
	Yellow float64 `json:"yellow"`
	Red    float64 `json:"red"`
}

// Reduction policy kinds.
const (
	ReductionNone       = "none"
	ReductionPercent    = "percent"
	ReductionStepped    = "stepped"
	ReductionExpression = "expression"
)

// ReductionPolicy describes how protective factors reduce the raw score.
// The reduction amount is always recorded separately from the raw score and
// the final score is clamped at zero.
type ReductionPolicy struct {
	// Kind is one of "none", "percent", "stepped" or "expression".
	// Empty is treated as "none".
	Kind string `json:"kind,omitempty"`

	// Percent (kind=percent) reduces the raw score by this percentage per
	// protective tag, capped at MaxPercent overall. Range [0, 100].
	Percent float64 `json:"percent,omitempty"`

	// MaxPercent caps the total percentage reduction. Range [0, 100];
	// zero means no reduction cap below 100.
	MaxPercent float64 `json:"maxPercent,omitempty"`

	// Steps (kind=stepped) maps a minimum protective-tag count to a flat
	// reduction in score points. The highest matching step applies.
	Steps []ReductionStep `json:"steps,omitempty"`

	// Expression (kind=expression) is a CEL expression over
	// raw_score (double), protective_count (int) and
	// protective_points (double) returning the reduction amount.
	Expression string `json:"expression,omitempty"`
}

// ReductionStep maps a protective-tag count to a flat point reduction.
type ReductionStep struct {
	MinCount  int     `json:"minCount"`
	Reduction float64 `json:"reduction"`
}

// WeightFor resolves the weight for a tag: indicator weight, else category
// weight, else the document default.
func (d *ConfigDocument) WeightFor(indicatorID, category string) float64 {
	if w, ok := d.IndicatorWeights[indicatorID]; ok {
		return w
	}
	if category != "" {
		if w, ok := d.CategoryWeights[category]; ok {
			return w
		}
	}
	return d.DefaultWeight
}

// IsHardHit reports whether the indicator id is in the hard-hit set.
func (d *ConfigDocument) IsHardHit(indicatorID string) bool {
	for _, id := range d.HardHits {
		if id == indicatorID {
			return true
		}
	}
	return false
}

// IsProtective reports whether the indicator id is a protective factor.
func (d *ConfigDocument) IsProtective(indicatorID string) bool {
	for _, id := range d.ProtectiveIndicators {
		if id == indicatorID {
			return true
		}
	}
	return false
}

// EffectivePrecision returns the declared precision or the default.
func (d *ConfigDocument) EffectivePrecision() int {
	if d.Precision <= 0 {
		return DefaultPrecision
	}
	return d.Precision
}

// DimensionFor maps a tag's category to its scoring dimension. Categories
// not declared in either weight map fall into OTHER.
func (d *ConfigDocument) DimensionFor(category string) string {
	if category == "" {
		return DimensionOther
	}
	if _, ok := d.CategoryWeights[category]; ok {
		return category
	}
	return DimensionOther
}
