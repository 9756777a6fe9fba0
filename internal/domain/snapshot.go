package domain

import (
	"time"
)

// ScoreResult is the output of one scoring run: the numeric breakdown, the
// traffic-light classification and the rationale blocks that make the
// computation auditable. It is a pure function of (tags, configuration).
type ScoreResult struct {
	// RawScore is the sum of weighted contributions before reduction.
	RawScore float64 `json:"rawScore"`

	// ProtectiveReduction is the amount subtracted from the raw score.
	// Recorded separately so both stay visible in the rationale.
	ProtectiveReduction float64 `json:"protectiveReduction"`

	// FinalScore = max(RawScore - ProtectiveReduction, 0), rounded to the
	// configuration's declared precision.
	FinalScore float64 `json:"finalScore"`

	TrafficLight TrafficLight `json:"trafficLight"`

	// Contributions lists every tag and what it added, in deterministic
	// order (dimension, then indicator id).
	Contributions []Contribution `json:"contributions"`

	// HardHits lists the hard-hit rules that fired. Non-empty forces RED.
	HardHits []HardHit `json:"hardHits,omitempty"`

	// Dimensions lists per-dimension subtotals in deterministic order.
	Dimensions []DimensionSubtotal `json:"dimensions"`

	// Reduction details how the protective reduction was derived.
	Reduction ReductionDetail `json:"reduction"`
}

// Contribution records how a single tag contributed to the raw score.
type Contribution struct {
	IndicatorID string  `json:"indicatorId"`
	Dimension   string  `json:"dimension"`
	Severity    int     `json:"severity"`
	Weight      float64 `json:"weight"`
	Points      float64 `json:"points"` // severity * weight
}

// HardHit records a fired hard-hit rule.
type HardHit struct {
	IndicatorID string `json:"indicatorId"`
	Label       string `json:"label,omitempty"`
}

// DimensionSubtotal is the per-dimension slice of the raw score.
type DimensionSubtotal struct {
	Dimension string  `json:"dimension"`
	Subtotal  float64 `json:"subtotal"`
	TagCount  int     `json:"tagCount"`
}

// ReductionDetail explains the applied protective reduction.
type ReductionDetail struct {
	Kind             string  `json:"kind"`
	ProtectiveCount  int     `json:"protectiveCount"`
	ProtectivePoints float64 `json:"protectivePoints"`
	Amount           float64 `json:"amount"`
}

// RiskSnapshot is one immutable, timestamped record of a risk evaluation,
// tied to the case and the configuration version used. Snapshots are
// append-only: no update or delete path exists anywhere in the contract.
type RiskSnapshot struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	// ConfigID and ConfigVersion are denormalized so the snapshot stays
	// self-describing even if config rows are later superseded.
	ConfigID      string `json:"configId"`
	ConfigVersion string `json:"configVersion"`

	Result ScoreResult `json:"result"`

	CreatedAt time.Time `json:"createdAt"`
}

// ConfigRef identifies the configuration a snapshot was computed with.
type ConfigRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}
