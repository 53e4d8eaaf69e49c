// Package allowlist implements whitelist classification: suppression of
// false-positive scoring for accounts matching known-legitimate behavioral
// profiles (merchants, payroll) or an explicit allow-list.
package allowlist

import (
	"fmt"
	"math"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// Classifier marks accounts as legitimate hubs. Heuristic thresholds come
// from the engine config; custom CEL rules are compiled once at construction.
type Classifier struct {
	cfg      domain.EngineConfig
	programs []compiledRule
}

type compiledRule struct {
	id      string
	program cel.Program
}

// NewClassifier creates a classifier, compiling any configured CEL rules.
func NewClassifier(cfg domain.EngineConfig) (*Classifier, error) {
	c := &Classifier{cfg: cfg}
	if len(cfg.AllowlistRules) == 0 {
		return c, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("total_in", cel.DoubleType),
		cel.Variable("total_out", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	for _, rule := range cfg.AllowlistRules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile allowlist rule %s: %w", rule.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("allowlist rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for allowlist rule %s: %w", rule.ID, err)
		}
		c.programs = append(c.programs, compiledRule{id: rule.ID, program: program})
	}

	return c, nil
}

// Classify sets IsLegitimateHub on every account matching the static
// allow-list, a compiled rule, or a behavioral heuristic. The flag does not
// remove the account from the graph; it only gates score contributions.
func (c *Classifier) Classify(g *graph.Graph, static map[string]bool) {
	payroll := c.payrollReceivers(g)

	for _, id := range g.AccountIDs() {
		acct := g.Account(id)
		switch {
		case static[id]:
			acct.IsLegitimateHub = true
		case payroll[id]:
			acct.IsLegitimateHub = true
		case c.isMerchantHub(g, acct):
			acct.IsLegitimateHub = true
		case c.matchesRule(acct):
			acct.IsLegitimateHub = true
		}
	}
}

func (c *Classifier) matchesRule(acct *domain.Account) bool {
	if len(c.programs) == 0 {
		return false
	}
	activation := map[string]any{
		"account_id": acct.ID,
		"in_degree":  int64(acct.InDegree),
		"out_degree": int64(acct.OutDegree),
		"tx_count":   int64(acct.TxCount),
		"total_in":   acct.TotalIn,
		"total_out":  acct.TotalOut,
	}
	for _, rule := range c.programs {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			return true
		}
	}
	return false
}

// isMerchantHub detects high-volume merchant/settlement accounts: many
// distinct counterparties, steady (low-variance) daily traffic and, when the
// account moves money in both directions, near-balanced in/out volume.
func (c *Classifier) isMerchantHub(g *graph.Graph, acct *domain.Account) bool {
	degree := acct.InDegree
	if acct.OutDegree > degree {
		degree = acct.OutDegree
	}
	if degree < c.cfg.HubMinCounterparties {
		return false
	}

	if acct.TotalIn > 0 && acct.TotalOut > 0 {
		maxVol := math.Max(acct.TotalIn, acct.TotalOut)
		if math.Abs(acct.TotalIn-acct.TotalOut)/maxVol > c.cfg.HubBalanceTolerance {
			return false
		}
	}

	mean, std := dailyActivityStats(acct.Transactions)
	if mean == 0 {
		return false
	}
	return std < mean*c.cfg.HubDailyCVMax
}

// payrollReceivers finds receivers of stable recurring transfers: the same
// sender paying on a roughly monthly cadence with under 5% amount variance.
func (c *Classifier) payrollReceivers(g *graph.Graph) map[string]bool {
	receivers := make(map[string]bool)
	for _, sender := range g.AccountIDs() {
		for _, receiver := range g.Successors(sender) {
			txs := g.EdgesBetween(sender, receiver)
			if len(txs) < c.cfg.PayrollMinTransfers {
				continue
			}
			if !c.hasPayrollCadence(txs) {
				continue
			}
			amounts := make([]float64, len(txs))
			for i, tx := range txs {
				amounts[i] = tx.Amount
			}
			mean, std := meanStd(amounts)
			if mean > 0 && std < mean*c.cfg.PayrollAmountCVMax {
				receivers[receiver] = true
			}
		}
	}
	return receivers
}

func (c *Classifier) hasPayrollCadence(txs []domain.Transaction) bool {
	for i := 1; i < len(txs); i++ {
		gap := txs[i].Timestamp.Sub(txs[i-1].Timestamp)
		if gap < c.cfg.PayrollMinGap || gap > c.cfg.PayrollMaxGap {
			return false
		}
	}
	return true
}

// dailyActivityStats computes the mean and standard deviation of per-day
// transaction counts over the account's active period. Days without activity
// count toward both, but only active days are held in memory, so a few
// transactions years apart stay cheap.
func dailyActivityStats(txs []domain.Transaction) (mean, std float64) {
	if len(txs) == 0 {
		return 0, 0
	}
	first := txs[0].Timestamp.UTC().Truncate(24 * time.Hour)
	last := txs[len(txs)-1].Timestamp.UTC().Truncate(24 * time.Hour)
	days := int64(last.Sub(first).Hours()/24) + 1

	counts := make(map[int64]float64, len(txs))
	for _, tx := range txs {
		counts[tx.Timestamp.UTC().Truncate(24*time.Hour).Unix()]++
	}

	mean = float64(len(txs)) / float64(days)
	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance += float64(days-int64(len(counts))) * mean * mean
	variance /= float64(days)
	return mean, math.Sqrt(variance)
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
