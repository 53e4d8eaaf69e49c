package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)
		if err := c.Set(ctx, "tenant-a", "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		data, err := c.Get(ctx, "tenant-a", "key1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(data) != "value1" {
			t.Errorf("expected value1, got %s", data)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		c := NewLRUCache(10)
		data, err := c.Get(ctx, "tenant-a", "missing")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if data != nil {
			t.Errorf("expected nil on miss, got %s", data)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)
		c.Set(ctx, "tenant-a", "key1", []byte("value1"), time.Minute)
		if err := c.Delete(ctx, "tenant-a", "key1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		data, _ := c.Get(ctx, "tenant-a", "key1")
		if data != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := NewLRUCache(10)
		c.Set(ctx, "tenant-a", "key1", []byte("a-value"), time.Minute)
		data, _ := c.Get(ctx, "tenant-b", "key1")
		if data != nil {
			t.Error("tenant-b must not see tenant-a entries")
		}
	})

	t.Run("TenantRequired", func(t *testing.T) {
		c := NewLRUCache(10)
		if _, err := c.Get(ctx, "", "key1"); err == nil {
			t.Error("expected an error for empty tenant id")
		}
		if err := c.Set(ctx, "", "key1", []byte("v"), time.Minute); err == nil {
			t.Error("expected an error for empty tenant id")
		}
	})

	t.Run("Eviction", func(t *testing.T) {
		c := NewLRUCache(3)
		for i := 0; i < 5; i++ {
			c.Set(ctx, "tenant-a", fmt.Sprintf("key%d", i), []byte("v"), time.Minute)
		}
		size, capacity := c.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected size 3 / capacity 3, got %d / %d", size, capacity)
		}
		// The oldest entries were evicted.
		if data, _ := c.Get(ctx, "tenant-a", "key0"); data != nil {
			t.Error("key0 should have been evicted")
		}
		if data, _ := c.Get(ctx, "tenant-a", "key4"); data == nil {
			t.Error("key4 should still be present")
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		c := NewLRUCache(10)
		c.Set(ctx, "tenant-a", "key1", []byte("v"), 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		data, err := c.Get(ctx, "tenant-a", "key1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if data != nil {
			t.Error("expected nil after TTL expiry")
		}
	})
}

func TestAnalysisRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	result := &domain.AnalysisResult{
		AnalysisID: "an-001",
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     100,
			SuspiciousAccountsFlagged: 4,
			FraudRingsDetected:        1,
			AvgRiskScore:              42.5,
		},
		FraudRings: []domain.FraudRing{
			{RingID: "RING_001", PatternType: "cycle", MemberAccounts: []string{"A", "B", "C"}, RiskScore: 65},
		},
	}

	if err := c.SetAnalysis(ctx, "tenant-a", "an-001", result, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := c.GetAnalysis(ctx, "tenant-a", "an-001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a cache hit")
	}
	if got.AnalysisID != "an-001" || got.Summary.AvgRiskScore != 42.5 {
		t.Errorf("unexpected result: %+v", got)
	}
	if len(got.FraudRings) != 1 || got.FraudRings[0].RingID != "RING_001" {
		t.Errorf("rings not round-tripped: %+v", got.FraudRings)
	}

	missing, err := c.GetAnalysis(ctx, "tenant-a", "other")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for an uncached analysis")
	}
}
