// Package domain defines the core types and interfaces for MuleTrace.
package domain

import "time"

// Account is a node of the transaction graph. Aggregates are derived once
// during graph synthesis; the scoring fields are populated by the risk scoring
// matrix at the end of a run and are immutable afterwards.
type Account struct {
	ID string `json:"account_id"`

	// Derived aggregates (read-only after synthesis)
	TotalIn       float64   `json:"total_in"`
	TotalOut      float64   `json:"total_out"`
	TxCount       int       `json:"tx_count"`
	InDegree      int       `json:"in_degree"`
	OutDegree     int       `json:"out_degree"`
	FirstActivity time.Time `json:"first_activity"`
	LastActivity  time.Time `json:"last_activity"`

	// Transactions touching this account, sorted by timestamp ascending,
	// ties broken by transaction id. Shared read-only view; never mutate.
	Transactions []Transaction `json:"-"`

	// Scoring fields, written by the risk scoring matrix
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingIDs          []string `json:"ring_ids,omitempty"`
	IsLegitimateHub  bool     `json:"is_legitimate_hub"`
}

// PrimaryRingID returns the first assigned ring id, or "" when the account is
// not part of any ring. Accounts flagged by multiple detection passes keep the
// full set in RingIDs.
func (a *Account) PrimaryRingID() string {
	if len(a.RingIDs) == 0 {
		return ""
	}
	return a.RingIDs[0]
}
