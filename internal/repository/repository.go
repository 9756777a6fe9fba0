// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-care/kestrel/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveIndicator inserts or updates an indicator with tenant isolation.
func (r *SQLRepository) SaveIndicator(ctx context.Context, tenantID string, ind *domain.Indicator) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if ind.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO indicators (
			tenant_id, id, label, description, category, enabled, sort_order, default_severity, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			category = excluded.category,
			enabled = excluded.enabled,
			sort_order = excluded.sort_order,
			default_severity = excluded.default_severity,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, ind.ID, ind.Label, ind.Description, ind.Category,
		enabled, ind.SortOrder, nullableInt(ind.DefaultSeverity),
		now, now,
	)
	return err
}

// GetIndicator retrieves an indicator by ID with tenant isolation.
func (r *SQLRepository) GetIndicator(ctx context.Context, tenantID string, indicatorID string) (*domain.Indicator, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, id, label, description, category, enabled, sort_order, default_severity, created_at, updated_at
		FROM indicators
		WHERE tenant_id = ? AND id = ?
	`

	ind, err := scanIndicator(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, indicatorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return ind, err
}

// ListIndicators retrieves a tenant's indicators ordered by sort order.
func (r *SQLRepository) ListIndicators(ctx context.Context, tenantID string, includeDisabled bool) ([]*domain.Indicator, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, id, label, description, category, enabled, sort_order, default_severity, created_at, updated_at
		FROM indicators
		WHERE tenant_id = ?
	`
	if !includeDisabled {
		query += " AND enabled = 1"
	}
	query += " ORDER BY sort_order, id"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indicators []*domain.Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, ind)
	}

	return indicators, rows.Err()
}

// DisableIndicator disables an indicator. Indicators are never deleted:
// historical snapshots reference them by id.
func (r *SQLRepository) DisableIndicator(ctx context.Context, tenantID string, indicatorID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE indicators
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, indicatorID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// PutCaseTag inserts a case tag or replaces the severity override of an
// existing one. The (tenant, case, indicator) primary key prevents
// duplicates.
func (r *SQLRepository) PutCaseTag(ctx context.Context, tenantID string, tag *domain.CaseTag) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO case_tags (tenant_id, case_id, indicator_id, severity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, case_id, indicator_id) DO UPDATE SET
			severity = excluded.severity,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, tag.CaseID, tag.IndicatorID, nullableInt(tag.Severity),
		now, now,
	)
	return err
}

// DeleteCaseTag removes a tag from a case.
func (r *SQLRepository) DeleteCaseTag(ctx context.Context, tenantID string, caseID, indicatorID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM case_tags WHERE tenant_id = ? AND case_id = ? AND indicator_id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, caseID, indicatorID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// ListCaseTags retrieves the current tags of a case.
func (r *SQLRepository) ListCaseTags(ctx context.Context, tenantID string, caseID string) ([]*domain.CaseTag, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, case_id, indicator_id, severity, created_at, updated_at
		FROM case_tags
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY indicator_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*domain.CaseTag
	for rows.Next() {
		var tag domain.CaseTag
		var severity sql.NullInt64

		if err := rows.Scan(
			&tag.TenantID, &tag.CaseID, &tag.IndicatorID, &severity,
			&tag.CreatedAt, &tag.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if severity.Valid {
			s := int(severity.Int64)
			tag.Severity = &s
		}
		tags = append(tags, &tag)
	}

	return tags, rows.Err()
}

// CreateConfig stores a new configuration version. Fails with
// ErrDuplicateVersion when (tenant, version) already exists. Never activates.
func (r *SQLRepository) CreateConfig(ctx context.Context, tenantID string, cfg *domain.MatrixConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	document, err := json.Marshal(cfg.Document)
	if err != nil {
		return fmt.Errorf("failed to serialize config document: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	check := `SELECT COUNT(*) FROM matrix_configs WHERE tenant_id = ? AND version = ?`
	if err := tx.QueryRowContext(ctx, r.rebind(check), tenantID, cfg.Version).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrDuplicateVersion, tenantID, cfg.Version)
	}

	insert := `
		INSERT INTO matrix_configs (id, tenant_id, version, active, document, created_by, created_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(insert),
		cfg.ID, tenantID, cfg.Version, string(document), cfg.CreatedBy, cfg.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetConfig retrieves a configuration by surrogate id with tenant isolation.
func (r *SQLRepository) GetConfig(ctx context.Context, tenantID string, configID string) (*domain.MatrixConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectConfig + ` WHERE tenant_id = ? AND id = ?`

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, configID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return cfg, err
}

// GetActiveConfig retrieves the tenant's single active configuration.
// Returns ErrNoActiveConfig when none is active: callers must treat that as
// a hard stop, not a silent default.
func (r *SQLRepository) GetActiveConfig(ctx context.Context, tenantID string) (*domain.MatrixConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectConfig + ` WHERE tenant_id = ? AND active = 1`

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoActiveConfig
	}
	return cfg, err
}

// ListConfigs retrieves the tenant's configuration history, newest first.
func (r *SQLRepository) ListConfigs(ctx context.Context, tenantID string) ([]*domain.MatrixConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectConfig + ` WHERE tenant_id = ? ORDER BY created_at DESC, version DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.MatrixConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// ActivateConfig swaps the active configuration in one transaction:
// deactivate the current one (if any), activate the target, commit. The
// partial unique index on (tenant_id) WHERE active = 1 turns any lost update
// into a constraint violation instead of a corrupted invariant. On Postgres
// the target row is additionally locked FOR UPDATE so concurrent swaps for
// the same tenant serialize at the database.
func (r *SQLRepository) ActivateConfig(ctx context.Context, tenantID string, configID string) (*domain.MatrixConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := selectConfig + ` WHERE tenant_id = ? AND id = ?`
	if r.driver == "postgres" {
		query += " FOR UPDATE"
	}

	cfg, err := scanConfig(tx.QueryRowContext(ctx, r.rebind(query), tenantID, configID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Idempotent: already active means nothing to do and no audit noise.
	if cfg.Active {
		return cfg, tx.Commit()
	}

	deactivate := `UPDATE matrix_configs SET active = 0 WHERE tenant_id = ? AND active = 1`
	if _, err := tx.ExecContext(ctx, r.rebind(deactivate), tenantID); err != nil {
		return nil, err
	}

	activate := `UPDATE matrix_configs SET active = 1 WHERE tenant_id = ? AND id = ?`
	if _, err := tx.ExecContext(ctx, r.rebind(activate), tenantID, configID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	cfg.Active = true
	return cfg, nil
}

// SaveSnapshot stores a risk snapshot. Insert-only: the snapshot history is
// evidentiary and must never be mutated.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, tenantID string, snap *domain.RiskSnapshot) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	contributions, _ := json.Marshal(snap.Result.Contributions)
	hardHits, _ := json.Marshal(snap.Result.HardHits)
	dimensions, _ := json.Marshal(snap.Result.Dimensions)
	reduction, _ := json.Marshal(snap.Result.Reduction)

	query := `
		INSERT INTO risk_snapshots (
			id, tenant_id, case_id, config_id, config_version,
			raw_score, protective_reduction, final_score, traffic_light,
			contributions, hard_hits, dimensions, reduction, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		snap.ID, tenantID, snap.CaseID, snap.ConfigID, snap.ConfigVersion,
		snap.Result.RawScore, snap.Result.ProtectiveReduction,
		snap.Result.FinalScore, string(snap.Result.TrafficLight),
		string(contributions), string(hardHits), string(dimensions), string(reduction),
		snap.CreatedAt,
	)
	return err
}

// ListSnapshots retrieves a case's snapshot history, newest first.
func (r *SQLRepository) ListSnapshots(ctx context.Context, tenantID string, caseID string) ([]*domain.RiskSnapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectSnapshot + `
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*domain.RiskSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// LatestSnapshot retrieves the most recent snapshot for a case.
// Returns ErrNoSnapshot when the case has never been evaluated.
func (r *SQLRepository) LatestSnapshot(ctx context.Context, tenantID string, caseID string) (*domain.RiskSnapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectSnapshot + `
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoSnapshot
	}
	return snap, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const selectConfig = `
	SELECT id, tenant_id, version, active, document, created_by, created_at
	FROM matrix_configs
`

const selectSnapshot = `
	SELECT id, tenant_id, case_id, config_id, config_version,
		   raw_score, protective_reduction, final_score, traffic_light,
		   contributions, hard_hits, dimensions, reduction, created_at
	FROM risk_snapshots
`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIndicator(s scanner) (*domain.Indicator, error) {
	var ind domain.Indicator
	var description, category sql.NullString
	var enabled int
	var defaultSeverity sql.NullInt64

	if err := s.Scan(
		&ind.TenantID, &ind.ID, &ind.Label, &description, &category,
		&enabled, &ind.SortOrder, &defaultSeverity,
		&ind.CreatedAt, &ind.UpdatedAt,
	); err != nil {
		return nil, err
	}

	ind.Description = description.String
	ind.Category = category.String
	ind.Enabled = enabled == 1
	if defaultSeverity.Valid {
		sev := int(defaultSeverity.Int64)
		ind.DefaultSeverity = &sev
	}

	return &ind, nil
}

func scanConfig(s scanner) (*domain.MatrixConfig, error) {
	var cfg domain.MatrixConfig
	var active int
	var document string
	var createdBy sql.NullString

	if err := s.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Version, &active, &document,
		&createdBy, &cfg.CreatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Active = active == 1
	cfg.CreatedBy = createdBy.String
	if err := json.Unmarshal([]byte(document), &cfg.Document); err != nil {
		return nil, fmt.Errorf("failed to parse config document for %s: %w", cfg.ID, err)
	}

	return &cfg, nil
}

func scanSnapshot(s scanner) (*domain.RiskSnapshot, error) {
	var snap domain.RiskSnapshot
	var trafficLight string
	var contributions, hardHits, dimensions, reduction string

	if err := s.Scan(
		&snap.ID, &snap.TenantID, &snap.CaseID, &snap.ConfigID, &snap.ConfigVersion,
		&snap.Result.RawScore, &snap.Result.ProtectiveReduction,
		&snap.Result.FinalScore, &trafficLight,
		&contributions, &hardHits, &dimensions, &reduction,
		&snap.CreatedAt,
	); err != nil {
		return nil, err
	}

	snap.Result.TrafficLight = domain.TrafficLight(trafficLight)
	json.Unmarshal([]byte(contributions), &snap.Result.Contributions)
	json.Unmarshal([]byte(hardHits), &snap.Result.HardHits)
	json.Unmarshal([]byte(dimensions), &snap.Result.Dimensions)
	json.Unmarshal([]byte(reduction), &snap.Result.Reduction)

	return &snap, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
