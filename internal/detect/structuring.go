package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// StructuringDetector flags smurfing: many small transfers to or from many
// distinct counterparties inside a short burst. Fan-in (aggregation) and
// fan-out (dispersal) are tracked separately over a sliding window.
type StructuringDetector struct {
	cfg domain.EngineConfig
}

// NewStructuringDetector creates a structuring detector.
func NewStructuringDetector(cfg domain.EngineConfig) *StructuringDetector {
	return &StructuringDetector{cfg: cfg}
}

// Name implements Detector.
func (d *StructuringDetector) Name() string { return "structuring" }

// Detect slides the configured window across each account's chronological
// transaction lists with a two-pointer scan, O(N) per account. An account is
// flagged at most once, with the maximal distinct-counterparty count across
// all window positions; overlapping windows never double-count. Whitelisted
// hubs are exempt: legitimate high-fan-out entities are expected to look like
// this.
func (d *StructuringDetector) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	var res Result

	for _, id := range g.AccountIDs() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		acct := g.Account(id)
		if acct.IsLegitimateHub {
			continue
		}

		fanIn := maxDistinctInWindow(g.Inbound(id), senderOf, d.cfg.StructuringWindow)
		fanOut := maxDistinctInWindow(g.Outbound(id), receiverOf, d.cfg.StructuringWindow)

		var tags []string
		var explanations []string
		windowHours := int(d.cfg.StructuringWindow.Hours())
		if fanIn > d.cfg.StructuringThreshold {
			tags = append(tags, "fan_in")
			explanations = append(explanations, fmt.Sprintf(
				"Fan-in aggregation: %d distinct senders within a %d-hour window.", fanIn, windowHours))
		}
		if fanOut > d.cfg.StructuringThreshold {
			tags = append(tags, "fan_out")
			explanations = append(explanations, fmt.Sprintf(
				"Fan-out dispersal: %d distinct receivers within a %d-hour window.", fanOut, windowHours))
		}
		if len(tags) == 0 {
			continue
		}

		res.Findings = append(res.Findings, domain.Finding{
			Kind:        domain.PatternStructuring,
			Members:     []string{id},
			Points:      domain.PointsStructuring,
			Tags:        map[string][]string{id: tags},
			Explanation: map[string]string{id: joinSentences(explanations)},
		})
	}

	return res, nil
}

func senderOf(tx domain.Transaction) string   { return tx.SenderID }
func receiverOf(tx domain.Transaction) string { return tx.ReceiverID }

// maxDistinctInWindow returns the maximal number of distinct counterparties
// touched inside any window position. txs must be sorted chronologically.
func maxDistinctInWindow(txs []domain.Transaction, counterparty func(domain.Transaction) string, window time.Duration) int {
	if len(txs) == 0 {
		return 0
	}

	counts := make(map[string]int)
	maxDistinct := 0
	left := 0

	for right := 0; right < len(txs); right++ {
		counts[counterparty(txs[right])]++
		for txs[right].Timestamp.Sub(txs[left].Timestamp) > window {
			cp := counterparty(txs[left])
			counts[cp]--
			if counts[cp] == 0 {
				delete(counts, cp)
			}
			left++
		}
		if len(counts) > maxDistinct {
			maxDistinct = len(counts)
		}
	}
	return maxDistinct
}

func joinSentences(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
