package domain

// Warning codes for recoverable conditions surfaced alongside a result.
// Nothing in the pipeline is fatal except total absence of usable input.
const (
	WarnIngestion            = "IngestionError"
	WarnDuplicateTransaction = "DuplicateTransactionID"
	WarnSearchBudgetExceeded = "SearchBudgetExceeded"
)

// Warning is a structured, non-fatal condition attached to a result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Summary holds run-level statistics, computed as a final reduction.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	TotalTransactions         int     `json:"total_transactions"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	AvgRiskScore              float64 `json:"avg_risk_score"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// SuspiciousAccount is the per-account report entry.
type SuspiciousAccount struct {
	AccountID          string        `json:"account_id"`
	SuspicionScore     float64       `json:"suspicion_score"`
	DetectedPatterns   []string      `json:"detected_patterns"`
	RingID             string        `json:"ring_id,omitempty"`
	RingIDs            []string      `json:"ring_ids,omitempty"`
	IsLegitimateHub    bool          `json:"is_legitimate_hub"`
	Explanation        string        `json:"explanation"`
	RecentTransactions []Transaction `json:"recent_transactions"`
}

// Node is a graph node prepared for the presentation layer.
type Node struct {
	ID                string   `json:"id"`
	Label             string   `json:"label"`
	RiskScore         float64  `json:"risk_score"`
	Tags              []string `json:"tags"`
	TotalTransactions int      `json:"total_transactions"`
	InDegree          int      `json:"in_degree"`
	OutDegree         int      `json:"out_degree"`
	IsLegitimate      bool     `json:"is_legitimate"`
	RingID            string   `json:"ring_id,omitempty"`
}

// Edge is an aggregated directed edge between two graph nodes.
type Edge struct {
	FromNode string  `json:"from_node"`
	ToNode   string  `json:"to_node"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
}

// GraphData is the subgraph around suspicious accounts for visualization.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// AnalysisResult is the complete output of one forensic analysis run.
type AnalysisResult struct {
	AnalysisID         string              `json:"analysis_id"`
	Summary            Summary             `json:"summary"`
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []FraudRing         `json:"fraud_rings"`
	GraphData          GraphData           `json:"graph_data"`

	// Truncated reports that cycle enumeration hit its search budget and the
	// cycle findings are partial.
	Truncated bool      `json:"truncated,omitempty"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Checkpoint names emitted between pipeline stages.
const (
	StageSynthesis   = "Building graph topology"
	StageAllowlist   = "Classifying legitimate entities"
	StageCycles      = "Enumerating circular routing"
	StageStructuring = "Scanning structuring windows"
	StageShellChains = "Tracing shell chains"
	StageTemporal    = "Profiling temporal behavior"
	StageScoring     = "Aggregating risk scores"
)

// ProgressEvent is one checkpoint report {status, progress} pushed to an
// optional subscriber while a run executes.
type ProgressEvent struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// AnalysisStatus values for persisted runs.
const (
	AnalysisPending   = "pending"
	AnalysisRunning   = "running"
	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
	AnalysisCancelled = "cancelled"
)
