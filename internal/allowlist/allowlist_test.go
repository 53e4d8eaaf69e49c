package allowlist

import (
	"fmt"
	"testing"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func tx(id, sender, receiver string, amount float64, ts time.Time) domain.Transaction {
	return domain.Transaction{ID: id, SenderID: sender, ReceiverID: receiver, Amount: amount, Timestamp: ts}
}

func TestStaticAllowlist(t *testing.T) {
	g, _ := graph.Build([]domain.Transaction{
		tx("t1", "A", "B", 100, base),
	})

	c, err := NewClassifier(domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	c.Classify(g, map[string]bool{"B": true})

	if g.Account("A").IsLegitimateHub {
		t.Error("A should not be flagged legitimate")
	}
	if !g.Account("B").IsLegitimateHub {
		t.Error("B is on the static allow-list and should be flagged legitimate")
	}
}

func TestPayrollReceivers(t *testing.T) {
	// EMPLOYER pays EMP monthly with near-identical amounts.
	txs := []domain.Transaction{}
	for i := 0; i < 4; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("pay_%d", i), "EMPLOYER", "EMP",
			3000+float64(i), base.Add(time.Duration(i)*30*24*time.Hour),
		))
	}
	// Irregular transfers to OTHER: cadence too tight.
	for i := 0; i < 4; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("odd_%d", i), "EMPLOYER", "OTHER",
			3000, base.Add(time.Duration(i)*24*time.Hour),
		))
	}
	g, _ := graph.Build(txs)

	c, err := NewClassifier(domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	c.Classify(g, nil)

	if !g.Account("EMP").IsLegitimateHub {
		t.Error("EMP receives a stable monthly salary and should be flagged legitimate")
	}
	if g.Account("OTHER").IsLegitimateHub {
		t.Error("OTHER receives daily transfers, not payroll cadence")
	}
}

func TestMerchantHub(t *testing.T) {
	// MERCHANT with 60 distinct payers, steady daily traffic, balanced flow.
	txs := []domain.Transaction{}
	n := 0
	for day := 0; day < 10; day++ {
		for k := 0; k < 6; k++ {
			payer := fmt.Sprintf("CUST_%03d", day*6+k)
			txs = append(txs, tx(
				fmt.Sprintf("in_%d", n), payer, "MERCHANT",
				100, base.Add(time.Duration(day)*24*time.Hour+time.Duration(k)*time.Hour),
			))
			n++
		}
		// Daily settlement out keeps volumes balanced.
		txs = append(txs, tx(
			fmt.Sprintf("out_%d", day), "MERCHANT", "BANK",
			600, base.Add(time.Duration(day)*24*time.Hour+12*time.Hour),
		))
	}
	g, _ := graph.Build(txs)

	c, err := NewClassifier(domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	c.Classify(g, nil)

	if !g.Account("MERCHANT").IsLegitimateHub {
		t.Error("MERCHANT matches the merchant-hub profile and should be flagged legitimate")
	}
}

func TestMerchantHubNeedsSteadyDailyTraffic(t *testing.T) {
	// Sixty payers and balanced flow, but all activity sits on two days a
	// decade apart. The per-day cadence has to account for every quiet day in
	// between, so this profile is nothing like a merchant, and the check must
	// stay cheap despite the span.
	txs := []domain.Transaction{}
	for _, day := range []int{0, 3650} {
		for k := 0; k < 30; k++ {
			payer := fmt.Sprintf("CUST_%03d", day+k)
			txs = append(txs, tx(
				fmt.Sprintf("in_%d_%d", day, k), payer, "POPUP",
				100, base.Add(time.Duration(day)*24*time.Hour+time.Duration(k)*time.Minute),
			))
		}
		txs = append(txs, tx(
			fmt.Sprintf("out_%d", day), "POPUP", "BANK",
			3000, base.Add(time.Duration(day)*24*time.Hour+12*time.Hour),
		))
	}
	g, _ := graph.Build(txs)

	c, err := NewClassifier(domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	c.Classify(g, nil)

	if g.Account("POPUP").IsLegitimateHub {
		t.Error("two spikes of activity a decade apart are not steady merchant traffic")
	}
}

func TestCELRule(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.AllowlistRules = []domain.AllowlistRule{
		{ID: "trusted-prefix", Expression: `account_id.startsWith("GOV_") && tx_count > 0`},
	}

	g, _ := graph.Build([]domain.Transaction{
		tx("t1", "GOV_TREASURY", "A", 500, base),
	})

	c, err := NewClassifier(cfg)
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	c.Classify(g, nil)

	if !g.Account("GOV_TREASURY").IsLegitimateHub {
		t.Error("GOV_TREASURY matches the CEL rule and should be flagged legitimate")
	}
	if g.Account("A").IsLegitimateHub {
		t.Error("A does not match any rule")
	}
}

func TestCELRuleCompileError(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.AllowlistRules = []domain.AllowlistRule{
		{ID: "broken", Expression: `account_id +`},
	}
	if _, err := NewClassifier(cfg); err == nil {
		t.Fatal("expected a compile error for an invalid expression")
	}
}

func TestCELRuleMustReturnBool(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.AllowlistRules = []domain.AllowlistRule{
		{ID: "non-bool", Expression: `account_id`},
	}
	if _, err := NewClassifier(cfg); err == nil {
		t.Fatal("expected an error for a non-boolean expression")
	}
}
