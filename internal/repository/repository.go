// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
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

// SaveAnalysis stores an analysis record with tenant isolation.
// Existing records with the same ID are replaced, which covers the
// pending -> running -> completed/failed status transitions.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, rec *domain.AnalysisRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: analysis record requires an id", ErrInvalidInput)
	}

	var resultJSON []byte
	if rec.Result != nil {
		var err error
		resultJSON, err = json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis result: %w", err)
		}
	}

	var completedAt interface{}
	if !rec.CompletedAt.IsZero() {
		completedAt = rec.CompletedAt
	}

	query := `
		INSERT INTO analyses (id, tenant_id, status, result, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, tenant_id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			completed_at = excluded.completed_at`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.Status, nullableString(resultJSON), rec.Error,
		rec.CreatedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis retrieves an analysis record by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisRecord, error) {
	query := `
		SELECT id, status, result, error, created_at, completed_at
		FROM analyses
		WHERE tenant_id = ? AND id = ?`

	rec := &domain.AnalysisRecord{TenantID: tenantID}
	var resultJSON sql.NullString
	var errText sql.NullString
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID).Scan(
		&rec.ID, &rec.Status, &resultJSON, &errText, &rec.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
		}
		rec.Result = &result
	}
	if errText.Valid {
		rec.Error = errText.String
	}
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time
	}

	return rec, nil
}

// ListAnalyses returns the most recent analysis records for a tenant,
// newest first. Results are returned without the full result payload
// to keep listings cheap.
func (r *SQLRepository) ListAnalyses(ctx context.Context, tenantID string, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, status, error, created_at, completed_at
		FROM analyses
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var records []*domain.AnalysisRecord
	for rows.Next() {
		rec := &domain.AnalysisRecord{TenantID: tenantID}
		var errText sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Status, &errText, &rec.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		if errText.Valid {
			rec.Error = errText.String
		}
		if completedAt.Valid {
			rec.CompletedAt = completedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveAllowlistEntry upserts a known-legitimate account for a tenant.
func (r *SQLRepository) SaveAllowlistEntry(ctx context.Context, tenantID string, entry *domain.AllowlistEntry) error {
	if entry == nil || entry.AccountID == "" {
		return fmt.Errorf("%w: allowlist entry requires an account id", ErrInvalidInput)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO allowlist_entries (account_id, tenant_id, reason, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, tenant_id) DO UPDATE SET
			reason = excluded.reason`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.AccountID, tenantID, entry.Reason, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save allowlist entry: %w", err)
	}
	return nil
}

// ListAllowlist returns every allowlisted account for a tenant,
// ordered by account ID for stable output.
func (r *SQLRepository) ListAllowlist(ctx context.Context, tenantID string) ([]*domain.AllowlistEntry, error) {
	query := `
		SELECT account_id, reason, created_at
		FROM allowlist_entries
		WHERE tenant_id = ?
		ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AllowlistEntry
	for rows.Next() {
		entry := &domain.AllowlistEntry{}
		var reason sql.NullString
		if err := rows.Scan(&entry.AccountID, &reason, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allowlist entry: %w", err)
		}
		if reason.Valid {
			entry.Reason = reason.String
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteAllowlistEntry removes an allowlisted account for a tenant.
func (r *SQLRepository) DeleteAllowlistEntry(ctx context.Context, tenantID string, accountID string) error {
	query := `
		DELETE FROM allowlist_entries
		WHERE tenant_id = ? AND account_id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete allowlist entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
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

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
