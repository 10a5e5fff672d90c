package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaDetections = `
CREATE TABLE IF NOT EXISTS detections (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    overall_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    confidence INTEGER NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    processing_ms INTEGER NOT NULL DEFAULT 0,
    flags TEXT NOT NULL,
    evidence TEXT NOT NULL,
    sub_analyses TEXT NOT NULL,
    narrative TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_tenant ON detections(tenant_id);
CREATE INDEX IF NOT EXISTS idx_detections_subject ON detections(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_detections_level ON detections(tenant_id, risk_level);
CREATE INDEX IF NOT EXISTS idx_detections_created ON detections(tenant_id, created_at);
`

const schemaFlagRules = `
CREATE TABLE IF NOT EXISTS flag_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    contribution REAL NOT NULL DEFAULT 0,
    domains TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_flag_rules_tenant ON flag_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_flag_rules_enabled ON flag_rules(tenant_id, enabled);
`

// schemaWatchlist defines the watchlist table.
// Identifiers are unique per tenant so the cross-reference detector can
// look them up directly; re-saving an identifier updates the entry.
const schemaWatchlist = `
CREATE TABLE IF NOT EXISTS watchlist (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    identifier TEXT NOT NULL,
    kind TEXT NOT NULL,
    reason TEXT,
    reports INTEGER NOT NULL DEFAULT 0,
    added_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, identifier)
);

CREATE INDEX IF NOT EXISTS idx_watchlist_tenant ON watchlist(tenant_id);
CREATE INDEX IF NOT EXISTS idx_watchlist_kind ON watchlist(tenant_id, kind);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDetections,
		schemaFlagRules,
		schemaWatchlist,
	}
}
