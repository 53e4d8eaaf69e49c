// Package worker provides async analysis processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/export"
	"github.com/open-forensics/muletrace/internal/forensics"
)

// resultCacheTTL is how long completed results stay in the cache.
const resultCacheTTL = time.Hour

// Worker consumes analysis requests from the EventBus and runs them
// through the engine, publishing progress and final results back.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	engine   *forensics.Engine
	exporter export.Client

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = single global worker)
	TenantIDs []string
}

// AnalysisMessage is the payload published to TopicAnalysisRequested.
type AnalysisMessage struct {
	AnalysisID   string                     `json:"analysis_id"`
	TenantID     string                     `json:"tenant_id"`
	Transactions []domain.TransactionRecord `json:"transactions"`
	Allowlist    []string                   `json:"allowlist,omitempty"`
}

// ProgressMessage is the payload published to TopicAnalysisProgress.
type ProgressMessage struct {
	AnalysisID string  `json:"analysis_id"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *forensics.Engine, exporter export.Client) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		engine:   engine,
		exporter: exporter,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing analysis requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenantIDs := cfg.TenantIDs
	if len(tenantIDs) == 0 {
		tenantIDs = []string{"_global"}
	}

	for _, tenantID := range tenantIDs {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)

		slog.Info("tenant worker started",
			"tenant_id", tenantID,
			"topic", domain.TopicAnalysisRequested,
		)
	}

	return nil
}

// handleMessage runs one queued analysis end to end.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	var req AnalysisMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := msg.TenantID
	if req.TenantID != "" {
		tenantID = req.TenantID
	}
	analysisID := req.AnalysisID
	if analysisID == "" {
		analysisID = msg.ID
	}

	slog.Debug("processing analysis",
		"analysis_id", analysisID,
		"tenant_id", tenantID,
		"transactions", len(req.Transactions),
	)

	// Mark the run as started.
	rec := &domain.AnalysisRecord{
		ID:        analysisID,
		TenantID:  tenantID,
		Status:    domain.AnalysisRunning,
		CreatedAt: start.UTC(),
	}
	if w.repo != nil {
		if err := w.repo.SaveAnalysis(ctx, tenantID, rec); err != nil {
			slog.Error("failed to save analysis record",
				"analysis_id", analysisID,
				"error", err,
			)
		}
	}

	txs, decodeWarnings := forensics.DecodeLedger(req.Transactions)

	// Relay stage checkpoints to the progress topic.
	checkpoint := func(ev domain.ProgressEvent) {
		payload, _ := json.Marshal(ProgressMessage{
			AnalysisID: analysisID,
			Status:     ev.Status,
			Progress:   ev.Progress,
		})
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisProgress, payload); err != nil {
			slog.Warn("failed to publish progress",
				"analysis_id", analysisID,
				"error", err,
			)
		}
	}

	result, err := w.engine.Analyze(ctx, forensics.Request{
		Transactions: txs,
		Allowlist:    req.Allowlist,
	}, checkpoint)

	rec.CompletedAt = time.Now().UTC()

	if err != nil {
		rec.Status = domain.AnalysisFailed
		if ctx.Err() != nil {
			rec.Status = domain.AnalysisCancelled
		}
		rec.Error = err.Error()
		if w.repo != nil {
			_ = w.repo.SaveAnalysis(ctx, tenantID, rec)
		}

		payload, _ := json.Marshal(map[string]string{
			"analysis_id": analysisID,
			"error":       err.Error(),
		})
		if pubErr := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisFailed, payload); pubErr != nil {
			slog.Error("failed to publish failure",
				"analysis_id", analysisID,
				"error", pubErr,
			)
		}

		slog.Error("analysis failed",
			"analysis_id", analysisID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	result.AnalysisID = analysisID
	result.Warnings = append(decodeWarnings, result.Warnings...)

	rec.Status = domain.AnalysisCompleted
	rec.Result = result
	if w.repo != nil {
		if err := w.repo.SaveAnalysis(ctx, tenantID, rec); err != nil {
			slog.Error("failed to save analysis result",
				"analysis_id", analysisID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		if err := w.cache.SetAnalysis(ctx, tenantID, analysisID, result, resultCacheTTL); err != nil {
			slog.Warn("failed to cache analysis result",
				"analysis_id", analysisID,
				"error", err,
			)
		}
	}

	if w.exporter != nil {
		if err := w.exporter.ExportGraph(ctx, tenantID, analysisID, &result.GraphData); err != nil {
			slog.Warn("failed to export graph",
				"analysis_id", analysisID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, resultPayload); err != nil {
		slog.Error("failed to publish result",
			"analysis_id", analysisID,
			"error", err,
		)
	}

	slog.Info("analysis processed",
		"analysis_id", analysisID,
		"tenant_id", tenantID,
		"suspicious_accounts", result.Summary.SuspiciousAccountsFlagged,
		"fraud_rings", result.Summary.FraudRingsDetected,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}
