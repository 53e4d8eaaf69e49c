package api

import (
	"fmt"
	"math"

	"github.com/open-forensics/muletrace/internal/domain"
)

// BehavioralFlag is one observation in an account deep-dive.
type BehavioralFlag struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// Profile is the behavioral deep-dive returned for one account.
type Profile struct {
	AccountID            string           `json:"account_id"`
	Role                 string           `json:"role"`
	ForensicSummary      string           `json:"forensic_summary"`
	BehavioralFlags      []BehavioralFlag `json:"behavioral_flags"`
	Recommendation       string           `json:"recommendation"`
	PredictionConfidence float64          `json:"prediction_confidence"`
}

// buildProfile derives a role classification and temporal observations
// from one account's transaction history.
func buildProfile(acct *domain.Account) Profile {
	role := classifyRole(acct.InDegree, acct.OutDegree)

	flags := []BehavioralFlag{{
		Type:   "Topology",
		Detail: fmt.Sprintf("Degree centrality (%d in, %d out) confirms %s role.", acct.InDegree, acct.OutDegree, role),
	}}

	temporalDetail := "Insufficient temporal metadata available."
	txs := acct.Transactions
	if len(txs) > 0 {
		first := txs[0].Timestamp
		last := txs[len(txs)-1].Timestamp
		duration := last.Sub(first)

		nightCount := 0
		for _, tx := range txs {
			hour := tx.Timestamp.Hour()
			if hour >= 23 || hour < 5 {
				nightCount++
			}
		}
		nightPct := float64(nightCount) / float64(len(txs)) * 100
		if nightPct > 25 {
			flags = append(flags, BehavioralFlag{
				Type:   "Nocturnal",
				Detail: fmt.Sprintf("%.1f%% of activity occurs in dead-of-night hours (11PM-5AM).", nightPct),
			})
		}

		if duration.Seconds() < 3600 {
			temporalDetail = fmt.Sprintf("High-velocity burst: %d tx in %s.", len(txs), formatDuration(duration.Seconds()))
		} else {
			velocity := float64(len(txs)) / math.Max(1, duration.Hours())
			temporalDetail = fmt.Sprintf("Temporal density: %.1f tx/hr over a %s window.", velocity, formatDuration(duration.Seconds()))
		}

		if cv, ok := hourlyCadenceCV(txs); ok && cv < 0.2 {
			flags = append(flags, BehavioralFlag{
				Type:   "Robotic",
				Detail: "Highly consistent transaction cadence suggestive of automated pooling.",
			})
		}
	}
	flags = append(flags, BehavioralFlag{Type: "Temporal", Detail: temporalDetail})

	recommendation := "MONITOR. Potential shell entity in fund-routing chain."
	if acct.InDegree > 10 {
		recommendation = "IMMEDIATE FREEZE. High-velocity aggregator profile detected."
	}

	degreeSum := float64(acct.InDegree + acct.OutDegree)
	confidence := 0.85 + 0.10*math.Min(1.0, degreeSum/20)

	return Profile{
		AccountID:            acct.ID,
		Role:                 role,
		ForensicSummary:      fmt.Sprintf("Behavioral analysis of %s reveals a high-risk %s pattern.", acct.ID, role),
		BehavioralFlags:      flags,
		Recommendation:       recommendation,
		PredictionConfidence: math.Round(confidence*100) / 100,
	}
}

func classifyRole(inDegree, outDegree int) string {
	switch {
	case inDegree > 10 && outDegree < 2:
		return "Aggregator (Fan-in)"
	case outDegree > 10 && inDegree < 2:
		return "Distributor (Fan-out)"
	case inDegree >= 1 && outDegree >= 1:
		return "Intermediary Layer"
	default:
		return "Endpoint Node"
	}
}

// hourlyCadenceCV computes the coefficient of variation of per-hour
// transaction counts. Needs more than three occupied hourly buckets.
func hourlyCadenceCV(txs []domain.Transaction) (float64, bool) {
	buckets := make(map[int64]float64)
	for _, tx := range txs {
		buckets[tx.Timestamp.Unix()/3600]++
	}
	if len(buckets) <= 3 {
		return 0, false
	}

	var sum float64
	for _, n := range buckets {
		sum += n
	}
	mean := sum / float64(len(buckets))
	if mean == 0 {
		return 0, false
	}

	var variance float64
	for _, n := range buckets {
		variance += (n - mean) * (n - mean)
	}
	variance /= float64(len(buckets))

	return math.Sqrt(variance) / mean, true
}

// formatDuration renders seconds as a compact human-readable span.
func formatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", int(seconds))
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", int(seconds)/60, int(seconds)%60)
	case seconds < 86400:
		return fmt.Sprintf("%dh %dm", int(seconds)/3600, (int(seconds)%3600)/60)
	default:
		return fmt.Sprintf("%dd %dh", int(seconds)/86400, (int(seconds)%86400)/3600)
	}
}
