package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaIndicators = `
CREATE TABLE IF NOT EXISTS indicators (
    tenant_id TEXT NOT NULL,
    id TEXT NOT NULL,
    label TEXT NOT NULL,
    description TEXT,
    category TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    sort_order INTEGER NOT NULL DEFAULT 0,
    default_severity INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_indicators_tenant ON indicators(tenant_id);
CREATE INDEX IF NOT EXISTS idx_indicators_enabled ON indicators(tenant_id, enabled);
`

const schemaCaseTags = `
CREATE TABLE IF NOT EXISTS case_tags (
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    indicator_id TEXT NOT NULL,
    severity INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, case_id, indicator_id)
);

CREATE INDEX IF NOT EXISTS idx_case_tags_case ON case_tags(tenant_id, case_id);
`

// schemaMatrixConfigs holds versioned scoring configurations. The partial
// unique index on (tenant_id) WHERE active = 1 makes the single-active
// invariant a database guarantee, not just an application convention.
const schemaMatrixConfigs = `
CREATE TABLE IF NOT EXISTS matrix_configs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    version TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    document TEXT NOT NULL,
    created_by TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_matrix_configs_tenant ON matrix_configs(tenant_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_matrix_configs_single_active
    ON matrix_configs(tenant_id) WHERE active = 1;
`

// schemaRiskSnapshots is insert-only: no UPDATE or DELETE statement against
// this table exists anywhere in the codebase.
const schemaRiskSnapshots = `
CREATE TABLE IF NOT EXISTS risk_snapshots (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    config_id TEXT NOT NULL,
    config_version TEXT NOT NULL,
    raw_score REAL NOT NULL,
    protective_reduction REAL NOT NULL,
    final_score REAL NOT NULL,
    traffic_light TEXT NOT NULL,
    contributions TEXT NOT NULL,
    hard_hits TEXT NOT NULL,
    dimensions TEXT NOT NULL,
    reduction TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_snapshots_case
    ON risk_snapshots(tenant_id, case_id, created_at DESC);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaIndicators,
		schemaCaseTags,
		schemaMatrixConfigs,
		schemaRiskSnapshots,
	}
}
