// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
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

// SaveDetection stores a detection result with tenant isolation.
// Detections are append-only; IDs are never reused.
func (r *SQLRepository) SaveDetection(ctx context.Context, tenantID string, result *domain.DetectionResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	flags, _ := json.Marshal(result.Flags)
	evidence, _ := json.Marshal(result.Evidence)
	subAnalyses, _ := json.Marshal(result.SubAnalyses)
	narrative, _ := json.Marshal(result.Narrative)

	degraded := 0
	if result.Degraded {
		degraded = 1
	}

	query := `
		INSERT INTO detections (
			id, tenant_id, domain, subject_id, overall_score, risk_level,
			confidence, degraded, processing_ms, flags, evidence,
			sub_analyses, narrative, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, string(result.Domain), result.SubjectID,
		result.OverallScore, string(result.RiskLevel),
		result.Confidence, degraded, result.ProcessingMS,
		string(flags), string(evidence), string(subAnalyses), string(narrative),
		result.CreatedAt,
	)
	return err
}

// GetDetection retrieves a detection result by ID with tenant isolation.
func (r *SQLRepository) GetDetection(ctx context.Context, tenantID string, id string) (*domain.DetectionResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, domain, subject_id, overall_score, risk_level,
			   confidence, degraded, processing_ms, flags, evidence,
			   sub_analyses, narrative, created_at
		FROM detections
		WHERE tenant_id = ? AND id = ?
	`

	result, err := scanDetection(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return result, err
}

// ListDetectionsBySubject retrieves detections for a subject with tenant isolation.
func (r *SQLRepository) ListDetectionsBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) ([]*domain.DetectionResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, domain, subject_id, overall_score, risk_level,
			   confidence, degraded, processing_ms, flags, evidence,
			   sub_analyses, narrative, created_at
		FROM detections
		WHERE tenant_id = ? AND subject_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, subjectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.DetectionResult
	for rows.Next() {
		result, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(row rowScanner) (*domain.DetectionResult, error) {
	var result domain.DetectionResult
	var dom, level string
	var degraded int
	var flags, evidence, subAnalyses, narrative string

	err := row.Scan(
		&result.ID, &dom, &result.SubjectID,
		&result.OverallScore, &level,
		&result.Confidence, &degraded, &result.ProcessingMS,
		&flags, &evidence, &subAnalyses, &narrative,
		&result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.Domain = domain.AnalysisDomain(dom)
	result.RiskLevel = domain.RiskLevel(level)
	result.Degraded = degraded == 1

	json.Unmarshal([]byte(flags), &result.Flags)
	json.Unmarshal([]byte(evidence), &result.Evidence)
	json.Unmarshal([]byte(subAnalyses), &result.SubAnalyses)
	json.Unmarshal([]byte(narrative), &result.Narrative)

	return &result, nil
}

// SaveFlagRule stores a custom flag rule with tenant isolation.
// Re-saving an existing rule ID updates it in place.
func (r *SQLRepository) SaveFlagRule(ctx context.Context, tenantID string, rule *domain.FlagRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	domains, _ := json.Marshal(rule.Domains)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO flag_rules (
			id, tenant_id, name, description, expression, severity,
			contribution, domains, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			contribution = excluded.contribution,
			domains = excluded.domains,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, string(rule.Severity), rule.Contribution,
		string(domains), enabled,
		createdAt, now,
	)
	return err
}

// GetFlagRule retrieves a flag rule with tenant isolation.
func (r *SQLRepository) GetFlagRule(ctx context.Context, tenantID string, ruleID string) (*domain.FlagRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, severity,
			   contribution, domains, enabled, created_at, updated_at
		FROM flag_rules
		WHERE tenant_id = ? AND id = ?
	`

	rule, err := scanFlagRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListFlagRules retrieves all flag rules for a tenant, including
// disabled ones; the rule engine decides what to load.
func (r *SQLRepository) ListFlagRules(ctx context.Context, tenantID string) ([]*domain.FlagRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, severity,
			   contribution, domains, enabled, created_at, updated_at
		FROM flag_rules
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FlagRule
	for rows.Next() {
		rule, err := scanFlagRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func scanFlagRule(row rowScanner) (*domain.FlagRule, error) {
	var rule domain.FlagRule
	var severity, domains string
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
		&severity, &rule.Contribution, &domains, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Severity = domain.Severity(severity)
	rule.Enabled = enabled == 1
	json.Unmarshal([]byte(domains), &rule.Domains)

	return &rule, nil
}

// DeleteFlagRule removes a flag rule with tenant isolation.
func (r *SQLRepository) DeleteFlagRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM flag_rules WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveWatchlistEntry stores a watchlist entry with tenant isolation.
// Saving an identifier that already exists updates the entry.
func (r *SQLRepository) SaveWatchlistEntry(ctx context.Context, tenantID string, entry *domain.WatchlistEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if entry.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}

	addedAt := entry.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO watchlist (
			id, tenant_id, identifier, kind, reason, reports, added_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, identifier) DO UPDATE SET
			kind = excluded.kind,
			reason = excluded.reason,
			reports = excluded.reports
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, entry.Identifier, entry.Kind,
		entry.Reason, entry.Reports, addedAt,
	)
	return err
}

// LookupWatchlist retrieves a watchlist entry by identifier.
// Returns nil, nil when the identifier is unknown so a miss does not
// look like a storage failure to the detector.
func (r *SQLRepository) LookupWatchlist(ctx context.Context, tenantID string, identifier string) (*domain.WatchlistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, identifier, kind, reason, reports, added_at
		FROM watchlist
		WHERE tenant_id = ? AND identifier = ?
	`

	var entry domain.WatchlistEntry
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, identifier).Scan(
		&entry.ID, &entry.Identifier, &entry.Kind,
		&entry.Reason, &entry.Reports, &entry.AddedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// ListWatchlist retrieves all watchlist entries for a tenant.
func (r *SQLRepository) ListWatchlist(ctx context.Context, tenantID string) ([]*domain.WatchlistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, identifier, kind, reason, reports, added_at
		FROM watchlist
		WHERE tenant_id = ?
		ORDER BY identifier
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.WatchlistEntry
	for rows.Next() {
		var entry domain.WatchlistEntry
		if err := rows.Scan(
			&entry.ID, &entry.Identifier, &entry.Kind,
			&entry.Reason, &entry.Reports, &entry.AddedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
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
