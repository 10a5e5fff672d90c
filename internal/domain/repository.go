package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Detection results (append-only)
	SaveDetection(ctx context.Context, tenantID string, result *DetectionResult) error
	GetDetection(ctx context.Context, tenantID string, id string) (*DetectionResult, error)
	ListDetectionsBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) ([]*DetectionResult, error)

	// Custom flag rule operations
	SaveFlagRule(ctx context.Context, tenantID string, rule *FlagRule) error
	GetFlagRule(ctx context.Context, tenantID string, ruleID string) (*FlagRule, error)
	ListFlagRules(ctx context.Context, tenantID string) ([]*FlagRule, error)
	DeleteFlagRule(ctx context.Context, tenantID string, ruleID string) error

	// Watchlist (known scammer identifiers).
	// LookupWatchlist returns nil, nil when the identifier is unknown.
	SaveWatchlistEntry(ctx context.Context, tenantID string, entry *WatchlistEntry) error
	LookupWatchlist(ctx context.Context, tenantID string, identifier string) (*WatchlistEntry, error)
	ListWatchlist(ctx context.Context, tenantID string) ([]*WatchlistEntry, error)

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
