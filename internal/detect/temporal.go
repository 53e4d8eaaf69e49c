package detect

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// TemporalDetector profiles when an account moves money rather than where:
// nocturnal concentration, machine-regular cadence and burst velocity.
type TemporalDetector struct {
	cfg domain.EngineConfig
}

// NewTemporalDetector creates a temporal behavior analyzer.
func NewTemporalDetector(cfg domain.EngineConfig) *TemporalDetector {
	return &TemporalDetector{cfg: cfg}
}

// Name implements Detector.
func (d *TemporalDetector) Name() string { return "temporal" }

// Detect runs three independent sub-checks per account. Accounts with fewer
// than two transactions are exempt: there is no cadence to measure.
func (d *TemporalDetector) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	var res Result

	for _, id := range g.AccountIDs() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		acct := g.Account(id)
		if len(acct.Transactions) < 2 {
			continue
		}

		if ratio := nocturnalRatio(acct.Transactions); ratio > d.cfg.NocturnalRatio {
			res.Findings = append(res.Findings, domain.Finding{
				Kind:    domain.PatternNocturnal,
				Members: []string{id},
				Points:  domain.PointsNocturnal,
				Tags:    map[string][]string{id: {"nocturnal_activity"}},
				Explanation: map[string]string{id: fmt.Sprintf(
					"Suspicious nocturnal pattern: %.1f%% of activity during 23:00-05:00.", ratio*100)},
			})
		}

		if cv, ok := cadenceCV(acct.Transactions); ok && cv < d.cfg.RoboticCVMax {
			res.Findings = append(res.Findings, domain.Finding{
				Kind:    domain.PatternRobotic,
				Members: []string{id},
				Points:  domain.PointsRobotic,
				Tags:    map[string][]string{id: {"robotic"}},
				Explanation: map[string]string{id: fmt.Sprintf(
					"Machine-regular transaction cadence (coefficient of variation %.2f).", cv)},
			})
		}

		if hasBurst(acct.Transactions) {
			res.Findings = append(res.Findings, domain.Finding{
				Kind:    domain.PatternVelocity,
				Members: []string{id},
				Points:  domain.PointsVelocity,
				Tags:    map[string][]string{id: {"high_velocity"}},
				Explanation: map[string]string{id: "Detected unusual transaction burst frequency."},
			})
		}
	}

	return res, nil
}

// nocturnalRatio is the fraction of transactions whose local hour falls in
// [23:00, 05:00).
func nocturnalRatio(txs []domain.Transaction) float64 {
	night := 0
	for _, tx := range txs {
		h := tx.Timestamp.Hour()
		if h >= 23 || h < 5 {
			night++
		}
	}
	return float64(night) / float64(len(txs))
}

// cadenceCV computes the coefficient of variation of inter-transaction time
// deltas. A very low CV indicates automated scheduling. Needs at least two
// deltas to be meaningful.
func cadenceCV(txs []domain.Transaction) (float64, bool) {
	if len(txs) < 3 {
		return 0, false
	}
	deltas := make([]float64, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		deltas = append(deltas, txs[i].Timestamp.Sub(txs[i-1].Timestamp).Seconds())
	}

	var mean float64
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))
	if mean <= 0 {
		return 0, false
	}

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))

	return math.Sqrt(variance) / mean, true
}

// hasBurst buckets the account's activity into hourly counts and reports a
// burst when the peak hour stands out against the account's own baseline.
func hasBurst(txs []domain.Transaction) bool {
	if len(txs) <= 5 {
		return false
	}

	first := txs[0].Timestamp.Truncate(time.Hour)
	last := txs[len(txs)-1].Timestamp.Truncate(time.Hour)
	hours := int64(last.Sub(first).Hours()) + 1
	if hours < 2 {
		// All activity inside one hour bucket is a burst by definition only
		// when the account is otherwise quiet, which one bucket cannot show.
		return false
	}

	// Sparse buckets: the span can cover years while only a handful of hours
	// hold activity. Empty hours still count toward the baseline.
	counts := make(map[int64]float64, len(txs))
	for _, tx := range txs {
		counts[tx.Timestamp.Truncate(time.Hour).Unix()]++
	}

	mean := float64(len(txs)) / float64(hours)

	var peak, variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
		if c > peak {
			peak = c
		}
	}
	variance += float64(hours-int64(len(counts))) * mean * mean
	variance /= float64(hours)

	return peak > mean+3*math.Sqrt(variance)+5
}
