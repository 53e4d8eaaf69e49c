package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

func fanInTxs(senders int, sink string, spacing time.Duration) []domain.Transaction {
	txs := make([]domain.Transaction, 0, senders)
	for i := 0; i < senders; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("fi_%03d", i), fmt.Sprintf("SRC_%03d", i), sink,
			950, base.Add(time.Duration(i)*spacing),
		))
	}
	return txs
}

func TestStructuringFanIn(t *testing.T) {
	// 11 distinct senders within minutes: strictly above the threshold of 10.
	g, _ := graph.Build(fanInTxs(11, "SINK", time.Minute))

	d := NewStructuringDetector(domain.DefaultEngineConfig())
	res, err := d.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 structuring finding, got %d", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Kind != domain.PatternStructuring {
		t.Errorf("expected kind %s, got %s", domain.PatternStructuring, f.Kind)
	}
	if len(f.Members) != 1 || f.Members[0] != "SINK" {
		t.Errorf("expected SINK as the sole member, got %v", f.Members)
	}
	tags := f.Tags["SINK"]
	if len(tags) != 1 || tags[0] != "fan_in" {
		t.Errorf("expected tag fan_in, got %v", tags)
	}
	if f.Ring {
		t.Error("structuring findings do not form rings on their own")
	}
}

func TestStructuringThresholdIsStrict(t *testing.T) {
	// Exactly 10 distinct senders does not exceed the threshold.
	g, _ := graph.Build(fanInTxs(10, "SINK", time.Minute))

	d := NewStructuringDetector(domain.DefaultEngineConfig())
	res, err := d.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("expected no findings at the threshold boundary, got %d", len(res.Findings))
	}
}

func TestStructuringWindowBounds(t *testing.T) {
	// 11 senders spread 12 hours apart span 120 hours; no 72-hour window
	// holds more than 7 of them.
	g, _ := graph.Build(fanInTxs(11, "SINK", 12*time.Hour))

	d := NewStructuringDetector(domain.DefaultEngineConfig())
	res, err := d.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("expected no findings when senders fall outside the window, got %d", len(res.Findings))
	}
}

func TestStructuringFanOut(t *testing.T) {
	txs := make([]domain.Transaction, 0, 12)
	for i := 0; i < 12; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("fo_%03d", i), "SPRAYER", fmt.Sprintf("DST_%03d", i),
			900, base.Add(time.Duration(i)*time.Minute),
		))
	}
	g, _ := graph.Build(txs)

	d := NewStructuringDetector(domain.DefaultEngineConfig())
	res, err := d.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(res.Findings))
	}
	tags := res.Findings[0].Tags["SPRAYER"]
	if len(tags) != 1 || tags[0] != "fan_out" {
		t.Errorf("expected tag fan_out, got %v", tags)
	}
}

func TestStructuringSkipsLegitimateHubs(t *testing.T) {
	g, _ := graph.Build(fanInTxs(15, "MERCHANT", time.Minute))
	g.Account("MERCHANT").IsLegitimateHub = true

	d := NewStructuringDetector(domain.DefaultEngineConfig())
	res, err := d.Detect(context.Background(), g)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("expected whitelisted hub to be exempt, got %d findings", len(res.Findings))
	}
}
