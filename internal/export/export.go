// Package export pushes analysis graphs into an external graph database
// for downstream visual investigation tooling.
package export

import (
	"context"
	"errors"

	"github.com/open-forensics/muletrace/internal/domain"
)

var ErrMissingURI = errors.New("export: graph database URI is required")

// Client exports the flow graph of a completed analysis.
type Client interface {
	// ExportGraph writes the nodes and edges of one analysis run.
	// Nodes are keyed by (analysis_id, account_id) so repeated exports
	// of the same analysis are idempotent.
	ExportGraph(ctx context.Context, tenantID string, analysisID string, graph *domain.GraphData) error

	// VerifyConnectivity checks the backing store is reachable.
	VerifyConnectivity(ctx context.Context) error

	Close(ctx context.Context) error
}

// New creates an export client from configuration. Returns nil
// (no client) when export is disabled.
func New(ctx context.Context, cfg domain.ExportConfig) (Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return NewNeo4jClient(ctx, cfg)
}
