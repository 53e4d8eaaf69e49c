// Package forensics wires the analytical pipeline together: graph synthesis,
// whitelist classification, the four detector passes and the risk scoring
// matrix. One call, one run, no shared state between runs.
package forensics

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/open-forensics/muletrace/internal/allowlist"
	"github.com/open-forensics/muletrace/internal/detect"
	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
	"github.com/open-forensics/muletrace/internal/scoring"
)

var tracer = otel.Tracer("muletrace-engine")

// Checkpoint receives discrete progress events between pipeline stages. It
// is optional and has no bearing on the correctness of the run.
type Checkpoint func(domain.ProgressEvent)

// Request is the input to one analysis run.
type Request struct {
	// Transactions is the typed ledger. Structurally invalid entries are
	// skipped with a warning.
	Transactions []domain.Transaction

	// Allowlist holds account ids known to be legitimate for this run.
	Allowlist []string
}

// Engine is the forensic analytical engine. Safe for concurrent use: every
// run builds its own graph and the configuration is immutable.
type Engine struct {
	cfg        domain.EngineConfig
	classifier *allowlist.Classifier
}

// New creates an engine, compiling any configured allowlist rules.
func New(cfg domain.EngineConfig) (*Engine, error) {
	classifier, err := allowlist.NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, classifier: classifier}, nil
}

// Analyze runs the full pipeline. Cancellation is cooperative: the run stops
// between checkpoints (and inside the cycle-search budget loop) and returns
// the context error with no result. An empty ledger yields a zeroed summary,
// not an error.
func (e *Engine) Analyze(ctx context.Context, req Request, cp Checkpoint) (*domain.AnalysisResult, error) {
	start := time.Now()
	report := func(status string, progress float64) {
		if cp != nil {
			cp(domain.ProgressEvent{Status: status, Progress: progress})
		}
	}

	ctx, span := tracer.Start(ctx, "forensics.Analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("ledger.transactions", len(req.Transactions)))

	// Stage 1: graph synthesis.
	report(domain.StageSynthesis, 0.10)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, warnings := graph.Build(req.Transactions)

	if g.TxCount() == 0 {
		res := &domain.AnalysisResult{Warnings: warnings}
		res.Summary.ProcessingTimeSeconds = elapsedSeconds(start)
		return res, nil
	}

	// Stage 2: whitelist classification, a dependency of every detector.
	report(domain.StageAllowlist, 0.25)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	allow := make(map[string]bool, len(req.Allowlist))
	for _, id := range req.Allowlist {
		allow[id] = true
	}
	e.classifier.Classify(g, allow)

	// Stage 3: the four detector passes. They are read-only over the shared
	// graph and independent of each other, so they fan out concurrently.
	// Scoring is the join barrier.
	detectors := []detect.Detector{
		detect.NewCycleDetector(e.cfg),
		detect.NewStructuringDetector(e.cfg),
		detect.NewShellChainDetector(e.cfg),
		detect.NewTemporalDetector(e.cfg),
	}
	stages := map[string]string{
		"cycle":       domain.StageCycles,
		"structuring": domain.StageStructuring,
		"shell-chain": domain.StageShellChains,
		"temporal":    domain.StageTemporal,
	}

	results := make([]detect.Result, len(detectors))
	var mu sync.Mutex
	completed := 0

	eg, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		eg.Go(func() error {
			_, dspan := tracer.Start(gctx, "detect."+d.Name())
			defer dspan.End()

			res, err := d.Detect(gctx, g)
			if err != nil {
				return err
			}
			results[i] = res

			mu.Lock()
			completed++
			report(stages[d.Name()], 0.40+0.40*float64(completed)/float64(len(detectors)))
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Stage 4: score aggregation over all detector outputs.
	report(domain.StageScoring, 0.90)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := scoring.New(e.cfg).Score(g, results)
	res.Warnings = append(warnings, res.Warnings...)
	res.Summary.ProcessingTimeSeconds = elapsedSeconds(start)

	span.SetAttributes(
		attribute.Int("result.suspicious_accounts", res.Summary.SuspiciousAccountsFlagged),
		attribute.Int("result.fraud_rings", res.Summary.FraudRingsDetected),
		attribute.Bool("result.truncated", res.Truncated),
	)
	return res, nil
}

func elapsedSeconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
