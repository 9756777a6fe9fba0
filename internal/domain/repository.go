package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
//
// Snapshots are deliberately write-once: the interface exposes no update or
// delete for them, so the append-only guarantee is structural rather than
// conventional.
type Repository interface {
	// Indicator catalog operations
	SaveIndicator(ctx context.Context, tenantID string, ind *Indicator) error
	GetIndicator(ctx context.Context, tenantID string, indicatorID string) (*Indicator, error)
	ListIndicators(ctx context.Context, tenantID string, includeDisabled bool) ([]*Indicator, error)
	DisableIndicator(ctx context.Context, tenantID string, indicatorID string) error

	// Case tag operations. PutCaseTag replaces the severity override on
	// re-tag; no duplicate (case, indicator) pair is ever created.
	PutCaseTag(ctx context.Context, tenantID string, tag *CaseTag) error
	DeleteCaseTag(ctx context.Context, tenantID string, caseID, indicatorID string) error
	ListCaseTags(ctx context.Context, tenantID string, caseID string) ([]*CaseTag, error)

	// Matrix configuration operations. CreateConfig fails with
	// ErrDuplicateVersion when (tenant, version) exists and never
	// activates. ActivateConfig performs the deactivate-and-activate
	// swap in one transaction; callers serialize per tenant.
	CreateConfig(ctx context.Context, tenantID string, cfg *MatrixConfig) error
	GetConfig(ctx context.Context, tenantID string, configID string) (*MatrixConfig, error)
	GetActiveConfig(ctx context.Context, tenantID string) (*MatrixConfig, error)
	ListConfigs(ctx context.Context, tenantID string) ([]*MatrixConfig, error)
	ActivateConfig(ctx context.Context, tenantID string, configID string) (*MatrixConfig, error)

	// Snapshot operations, append-only.
	SaveSnapshot(ctx context.Context, tenantID string, snap *RiskSnapshot) error
	ListSnapshots(ctx context.Context, tenantID string, caseID string) ([]*RiskSnapshot, error)
	LatestSnapshot(ctx context.Context, tenantID string, caseID string) (*RiskSnapshot, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
