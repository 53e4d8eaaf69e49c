package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndGetAnalysis(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := &domain.AnalysisRecord{
		ID:        "an-001",
		Status:    domain.AnalysisRunning,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.SaveAnalysis(ctx, "tenant-a", rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetAnalysis(ctx, "tenant-a", "an-001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != "an-001" || got.Status != domain.AnalysisRunning {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Result != nil {
		t.Error("running record should have no result payload")
	}
}

func TestAnalysisStatusTransition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := &domain.AnalysisRecord{
		ID:        "an-002",
		Status:    domain.AnalysisRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveAnalysis(ctx, "tenant-a", rec); err != nil {
		t.Fatalf("save running failed: %v", err)
	}

	rec.Status = domain.AnalysisCompleted
	rec.CompletedAt = time.Now().UTC()
	rec.Result = &domain.AnalysisResult{
		AnalysisID: "an-002",
		Summary:    domain.Summary{TotalAccountsAnalyzed: 7, FraudRingsDetected: 1},
	}
	if err := repo.SaveAnalysis(ctx, "tenant-a", rec); err != nil {
		t.Fatalf("save completed failed: %v", err)
	}

	got, err := repo.GetAnalysis(ctx, "tenant-a", "an-002")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.AnalysisCompleted {
		t.Errorf("expected status %s, got %s", domain.AnalysisCompleted, got.Status)
	}
	if got.Result == nil || got.Result.Summary.TotalAccountsAnalyzed != 7 {
		t.Errorf("result payload not round-tripped: %+v", got.Result)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at should be set")
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetAnalysis(context.Background(), "tenant-a", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := &domain.AnalysisRecord{ID: "an-003", Status: domain.AnalysisCompleted, CreatedAt: time.Now().UTC()}
	if err := repo.SaveAnalysis(ctx, "tenant-a", rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := repo.GetAnalysis(ctx, "tenant-b", "an-003"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tenant-b must not see tenant-a records, got %v", err)
	}
}

func TestListAnalyses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, id := range []string{"an-old", "an-mid", "an-new"} {
		rec := &domain.AnalysisRecord{
			ID:        id,
			Status:    domain.AnalysisCompleted,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveAnalysis(ctx, "tenant-a", rec); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}

	records, err := repo.ListAnalyses(ctx, "tenant-a", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records with limit 2, got %d", len(records))
	}
	if records[0].ID != "an-new" || records[1].ID != "an-mid" {
		t.Errorf("expected newest-first ordering, got %s then %s", records[0].ID, records[1].ID)
	}
}

func TestAllowlistCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := &domain.AllowlistEntry{AccountID: "MERCHANT_X", Reason: "verified merchant"}
	if err := repo.SaveAllowlistEntry(ctx, "tenant-a", entry); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Upsert replaces the reason.
	entry.Reason = "payment processor"
	if err := repo.SaveAllowlistEntry(ctx, "tenant-a", entry); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	entries, err := repo.ListAllowlist(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after upsert, got %d", len(entries))
	}
	if entries[0].Reason != "payment processor" {
		t.Errorf("expected updated reason, got %q", entries[0].Reason)
	}

	if err := repo.DeleteAllowlistEntry(ctx, "tenant-a", "MERCHANT_X"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.DeleteAllowlistEntry(ctx, "tenant-a", "MERCHANT_X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestSaveAnalysisValidation(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SaveAnalysis(context.Background(), "tenant-a", &domain.AnalysisRecord{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a record without id, got %v", err)
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
