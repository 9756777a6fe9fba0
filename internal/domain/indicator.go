// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Severity bounds for indicators and tag overrides.
const (
	SeverityMin = 0
	SeverityMax = 3

	// DefaultSeverity is assumed when neither the tag nor the
	// indicator declares one.
	DefaultSeverity = 1
)

// Indicator is a tenant-owned risk signal ("Anlass") that can be attached
// to a case. Indicators are never deleted, only disabled: historical
// snapshots reference indicator ids by string and must remain interpretable.
type Indicator struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`

	// Category groups indicators into scoring dimensions (e.g. "BODY", "PSY").
	// Empty means the indicator falls into the OTHER dimension.
	Category string `json:"category,omitempty"`

	Enabled bool `json:"enabled"`

	// SortOrder is a stable display ordering for tag-entry UIs.
	// It carries no scoring semantics.
	SortOrder int `json:"sortOrder"`

	// DefaultSeverity (0-3) applies when a tag has no override.
	// Nil means unset.
	DefaultSeverity *int `json:"defaultSeverity,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// CaseTag associates a case with an indicator. A case holds at most one tag
// per indicator; re-tagging replaces the severity override instead of
// creating a duplicate.
type CaseTag struct {
	TenantID    string `json:"tenantId"`
	CaseID      string `json:"caseId"`
	IndicatorID string `json:"indicatorId"`

	// Severity overrides the indicator's default (0-3). Nil falls back.
	Severity *int `json:"severity,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ResolvedTag is a case tag joined against the indicator catalog at
// resolution time: category and effective severity are looked up fresh on
// every evaluation, never cached on the tag.
type ResolvedTag struct {
	IndicatorID string `json:"indicatorId"`
	Label       string `json:"label,omitempty"`
	Category    string `json:"category,omitempty"`

	// Severity is the effective value: tag override, else indicator
	// default, else DefaultSeverity.
	Severity int `json:"severity"`
}

// ValidSeverity reports whether s is within the allowed severity range.
func ValidSeverity(s int) bool {
	return s >= SeverityMin && s <= SeverityMax
}
