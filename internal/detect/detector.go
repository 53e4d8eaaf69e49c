// Package detect implements the four heuristic detection passes: circular
// routing, structuring bursts, shell chains and temporal behavior. Detectors
// read the shared transaction graph without mutating it, so the engine may
// run them concurrently.
package detect

import (
	"context"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// Result is the output of one detector pass. Truncated marks a pass that hit
// its search budget and returned partial findings.
type Result struct {
	Findings  []domain.Finding
	Truncated bool
	Warnings  []domain.Warning
}

// Detector is a single read-only pass over the transaction graph.
type Detector interface {
	Name() string
	Detect(ctx context.Context, g *graph.Graph) (Result, error)
}
