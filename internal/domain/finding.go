package domain

// PatternKind identifies the behavioral pattern a detector found.
type PatternKind string

const (
	PatternCycle       PatternKind = "cycle"
	PatternStructuring PatternKind = "structuring"
	PatternShellChain  PatternKind = "shell-chain"
	PatternNocturnal   PatternKind = "nocturnal"
	PatternRobotic     PatternKind = "robotic"
	PatternVelocity    PatternKind = "velocity"
)

// Point contributions per pattern kind. An account collects each kind's
// contribution at most once regardless of how many findings of that kind it
// appears in; the capped sum across distinct kinds is the suspicion score.
const (
	PointsCycle       = 25.0
	PointsStructuring = 40.0
	PointsShellChain  = 20.0
	PointsNocturnal   = 25.0
	PointsRobotic     = 15.0
	PointsVelocity    = 15.0
)

// Finding is the result of one detector hit: a pattern kind, the accounts
// implicated, and the per-account point contribution.
type Finding struct {
	Kind PatternKind

	// Members lists the implicated accounts in detection order (cycle order
	// for carousels, chain order for shell chains).
	Members []string

	// Points is the per-member contribution toward the suspicion score.
	Points float64

	// Ring marks findings that form a fraud ring (cycles and shell chains
	// always do; single-account findings do not).
	Ring bool

	// Tags holds per-account pattern tags, e.g. fan_in / fan_out for
	// structuring or cycle_length_4 for carousels. Defaults to the kind.
	Tags map[string][]string

	// Explanation holds a per-account human-readable justification.
	Explanation map[string]string
}

// TagsFor returns the pattern tags for an account, defaulting to the kind.
func (f *Finding) TagsFor(accountID string) []string {
	if tags, ok := f.Tags[accountID]; ok && len(tags) > 0 {
		return tags
	}
	return []string{string(f.Kind)}
}

// FraudRing is a cluster of accounts jointly implicated by one detection
// pass. Ring ids are stable within a run only.
type FraudRing struct {
	RingID         string   `json:"ring_id"`
	PatternType    string   `json:"pattern_type"`
	MemberAccounts []string `json:"member_accounts"`
	RiskScore      float64  `json:"risk_score"`
}
