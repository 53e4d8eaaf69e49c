package domain

import (
	"context"
	"time"
)

// AnalysisRecord is the persisted envelope of one analysis run.
type AnalysisRecord struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Status      string          `json:"status"`
	Result      *AnalysisResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt time.Time       `json:"completedAt,omitempty"`
}

// AllowlistEntry is a persisted known-legitimate account.
type AllowlistEntry struct {
	AccountID string    `json:"account_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Analysis run operations
	SaveAnalysis(ctx context.Context, tenantID string, rec *AnalysisRecord) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*AnalysisRecord, error)
	ListAnalyses(ctx context.Context, tenantID string, limit int) ([]*AnalysisRecord, error)

	// Allowlist operations
	SaveAllowlistEntry(ctx context.Context, tenantID string, entry *AllowlistEntry) error
	ListAllowlist(ctx context.Context, tenantID string) ([]*AllowlistEntry, error)
	DeleteAllowlistEntry(ctx context.Context, tenantID string, accountID string) error

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
