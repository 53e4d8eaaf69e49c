package export

import (
	"context"
	"sync"

	"github.com/open-forensics/muletrace/internal/domain"
)

// MemoryClient keeps exported graphs in memory. Used in tests and when
// a graph database is not part of the deployment.
type MemoryClient struct {
	mu     sync.RWMutex
	graphs map[string]*domain.GraphData
}

// NewMemoryClient creates an in-memory export client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{graphs: make(map[string]*domain.GraphData)}
}

// ExportGraph stores the graph keyed by tenant and analysis.
func (c *MemoryClient) ExportGraph(ctx context.Context, tenantID string, analysisID string, graph *domain.GraphData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs[tenantID+":"+analysisID] = graph
	return nil
}

// Graph returns a previously exported graph, or nil.
func (c *MemoryClient) Graph(tenantID, analysisID string) *domain.GraphData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graphs[tenantID+":"+analysisID]
}

// VerifyConnectivity always succeeds.
func (c *MemoryClient) VerifyConnectivity(ctx context.Context) error {
	return nil
}

// Close releases stored graphs.
func (c *MemoryClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs = make(map[string]*domain.GraphData)
	return nil
}
