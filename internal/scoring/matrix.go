// Package scoring implements the risk scoring matrix: deterministic,
// explainable aggregation of detector findings into per-account suspicion
// scores, fraud rings and the run summary.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/open-forensics/muletrace/internal/detect"
	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// Matrix aggregates detector outputs. It runs strictly after all detector
// passes have completed and is the only component that writes the scoring
// fields on accounts.
type Matrix struct {
	cfg domain.EngineConfig
}

// New creates a scoring matrix.
func New(cfg domain.EngineConfig) *Matrix {
	return &Matrix{cfg: cfg}
}

// accountState accumulates per-account evidence before the final reduction.
type accountState struct {
	contributions map[domain.PatternKind]float64
	tags          []string
	tagSeen       map[string]bool
	explanations  []string
	explainSeen   map[string]bool
	ringIDs       []string
	ringPass      map[domain.PatternKind]bool
}

// Score reduces the ordered detector results into the analysis output.
// Results must be passed in a fixed detector order; together with the
// deterministic ordering inside each detector this makes ring ids and the
// whole report reproducible for identical input.
func (m *Matrix) Score(g *graph.Graph, results []detect.Result) *domain.AnalysisResult {
	out := &domain.AnalysisResult{}

	states := make(map[string]*accountState)
	state := func(id string) *accountState {
		s, ok := states[id]
		if !ok {
			s = &accountState{
				contributions: make(map[domain.PatternKind]float64),
				tagSeen:       make(map[string]bool),
				explainSeen:   make(map[string]bool),
				ringPass:      make(map[domain.PatternKind]bool),
			}
			states[id] = s
		}
		return s
	}

	type ringDraft struct {
		id      string
		kind    domain.PatternKind
		members []string
	}
	var rings []ringDraft
	ringSeq := 0

	for _, res := range results {
		out.Truncated = out.Truncated || res.Truncated
		out.Warnings = append(out.Warnings, res.Warnings...)

		for _, f := range res.Findings {
			var ringID string
			if f.Ring {
				ringSeq++
				ringID = fmt.Sprintf("RING_%03d", ringSeq)
				rings = append(rings, ringDraft{id: ringID, kind: f.Kind, members: f.Members})
			}

			for _, member := range f.Members {
				acct := g.Account(member)
				if acct == nil {
					continue
				}

				points := f.Points
				if acct.IsLegitimateHub && !ringEligibleKind(f.Kind) {
					// A hub can still sit inside a laundering cycle or shell
					// chain; only the volume-shaped signals are discounted.
					points *= m.cfg.HubDiscount
				}
				if points <= 0 {
					continue
				}

				s := state(member)
				// Capped, not additive, across findings of the same kind.
				if points > s.contributions[f.Kind] {
					s.contributions[f.Kind] = points
				}
				for _, tag := range f.TagsFor(member) {
					if !s.tagSeen[tag] {
						s.tagSeen[tag] = true
						s.tags = append(s.tags, tag)
					}
				}
				if expl := f.Explanation[member]; expl != "" && !s.explainSeen[expl] {
					s.explainSeen[expl] = true
					s.explanations = append(s.explanations, expl)
				}
				// At most one ring per detector pass per account.
				if ringID != "" && !s.ringPass[f.Kind] {
					s.ringPass[f.Kind] = true
					s.ringIDs = append(s.ringIDs, ringID)
				}
			}
		}
	}

	// Final reduction: write scoring fields onto accounts and collect the
	// suspicious ones.
	var suspicious []domain.SuspiciousAccount
	var scoreSum float64
	for _, id := range g.AccountIDs() {
		s, ok := states[id]
		if !ok {
			continue
		}
		acct := g.Account(id)

		var score float64
		for _, points := range s.contributions {
			score += points
		}
		score = math.Min(100, score)
		score = round2(score)
		if score <= 0 {
			continue
		}

		sort.Strings(s.tags)
		acct.SuspicionScore = score
		acct.DetectedPatterns = s.tags
		acct.RingIDs = s.ringIDs

		suspicious = append(suspicious, domain.SuspiciousAccount{
			AccountID:          id,
			SuspicionScore:     score,
			DetectedPatterns:   s.tags,
			RingID:             acct.PrimaryRingID(),
			RingIDs:            s.ringIDs,
			IsLegitimateHub:    acct.IsLegitimateHub,
			Explanation:        joinExplanations(s.explanations),
			RecentTransactions: recentTransactions(acct, 10),
		})
		scoreSum += score
	}

	sort.SliceStable(suspicious, func(i, j int) bool {
		if suspicious[i].SuspicionScore == suspicious[j].SuspicionScore {
			return suspicious[i].AccountID < suspicious[j].AccountID
		}
		return suspicious[i].SuspicionScore > suspicious[j].SuspicionScore
	})
	out.SuspiciousAccounts = suspicious

	// Assemble rings: a ring is as dangerous as its most compromised member.
	for _, draft := range rings {
		ring := domain.FraudRing{
			RingID:      draft.id,
			PatternType: string(draft.kind),
		}
		for _, member := range draft.members {
			ring.MemberAccounts = append(ring.MemberAccounts, member)
			if acct := g.Account(member); acct != nil && acct.SuspicionScore > ring.RiskScore {
				ring.RiskScore = acct.SuspicionScore
			}
		}
		sort.Strings(ring.MemberAccounts)
		out.FraudRings = append(out.FraudRings, ring)
	}
	sort.SliceStable(out.FraudRings, func(i, j int) bool {
		if out.FraudRings[i].RiskScore == out.FraudRings[j].RiskScore {
			return out.FraudRings[i].RingID < out.FraudRings[j].RingID
		}
		return out.FraudRings[i].RiskScore > out.FraudRings[j].RiskScore
	})

	out.GraphData = buildGraphData(g, suspicious)

	avg := 0.0
	if len(suspicious) > 0 {
		avg = round2(scoreSum / float64(len(suspicious)))
	}
	out.Summary = domain.Summary{
		TotalAccountsAnalyzed:     g.AccountCount(),
		TotalTransactions:         g.TxCount(),
		SuspiciousAccountsFlagged: len(suspicious),
		FraudRingsDetected:        len(out.FraudRings),
		AvgRiskScore:              avg,
	}

	return out
}

// ringEligibleKind reports whether findings of this kind survive whitelist
// suppression.
func ringEligibleKind(kind domain.PatternKind) bool {
	return kind == domain.PatternCycle || kind == domain.PatternShellChain
}

// buildGraphData extracts the subgraph of suspicious accounts plus their
// direct neighbors for the presentation layer.
func buildGraphData(g *graph.Graph, suspicious []domain.SuspiciousAccount) domain.GraphData {
	relevant := make(map[string]bool, len(suspicious)*3)
	for _, sa := range suspicious {
		relevant[sa.AccountID] = true
		for _, n := range g.Successors(sa.AccountID) {
			relevant[n] = true
		}
		for _, n := range g.Predecessors(sa.AccountID) {
			relevant[n] = true
		}
	}

	ids := make([]string, 0, len(relevant))
	for id := range relevant {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var data domain.GraphData
	for _, id := range ids {
		acct := g.Account(id)
		if acct == nil {
			continue
		}
		data.Nodes = append(data.Nodes, domain.Node{
			ID:                id,
			Label:             id,
			RiskScore:         acct.SuspicionScore,
			Tags:              acct.DetectedPatterns,
			TotalTransactions: acct.TxCount,
			InDegree:          acct.InDegree,
			OutDegree:         acct.OutDegree,
			IsLegitimate:      acct.IsLegitimateHub,
			RingID:            acct.PrimaryRingID(),
		})
	}

	for _, pe := range g.PairEdges(relevant) {
		data.Edges = append(data.Edges, domain.Edge{
			FromNode: pe.From,
			ToNode:   pe.To,
			Label:    fmt.Sprintf("$%.0f", pe.TotalAmount),
			Value:    pe.TotalAmount,
		})
	}

	return data
}

// recentTransactions returns up to n of the account's latest transactions,
// newest first.
func recentTransactions(acct *domain.Account, n int) []domain.Transaction {
	txs := acct.Transactions
	if len(txs) > n {
		txs = txs[len(txs)-n:]
	}
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[len(txs)-1-i] = tx
	}
	return out
}

func joinExplanations(parts []string) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += " "
		}
		s += p
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
