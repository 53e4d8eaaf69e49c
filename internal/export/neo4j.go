package export

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/open-forensics/muletrace/internal/domain"
)

const (
	mergeNodesCypher = `
		UNWIND $nodes AS n
		MERGE (a:Account {tenant_id: $tenant_id, analysis_id: $analysis_id, account_id: n.id})
		SET a.risk_score = n.risk_score,
		    a.tags = n.tags,
		    a.total_transactions = n.total_transactions,
		    a.in_degree = n.in_degree,
		    a.out_degree = n.out_degree,
		    a.is_legitimate = n.is_legitimate,
		    a.ring_id = n.ring_id`

	mergeEdgesCypher = `
		UNWIND $edges AS e
		MATCH (from:Account {tenant_id: $tenant_id, analysis_id: $analysis_id, account_id: e.from_node})
		MATCH (to:Account {tenant_id: $tenant_id, analysis_id: $analysis_id, account_id: e.to_node})
		MERGE (from)-[r:SENT_TO]->(to)
		SET r.total_amount = e.value,
		    r.label = e.label`
)

// Neo4jClient exports graphs over the Bolt protocol using the official
// Neo4j driver. Wire-compatible openCypher endpoints (such as AWS
// Neptune) work with the same driver.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jClient establishes a Bolt connection and verifies it.
func NewNeo4jClient(ctx context.Context, cfg domain.ExportConfig) (*Neo4jClient, error) {
	if cfg.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}

	return &Neo4jClient{
		driver:   driver,
		database: cfg.Database,
	}, nil
}

// ExportGraph merges the analysis subgraph into the graph database.
// Nodes first, then edges, in one write session.
func (c *Neo4jClient) ExportGraph(ctx context.Context, tenantID string, analysisID string, graph *domain.GraphData) error {
	if graph == nil || len(graph.Nodes) == 0 {
		return nil
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	nodes := make([]map[string]any, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodes = append(nodes, map[string]any{
			"id":                 n.ID,
			"risk_score":         n.RiskScore,
			"tags":               n.Tags,
			"total_transactions": n.TotalTransactions,
			"in_degree":          n.InDegree,
			"out_degree":         n.OutDegree,
			"is_legitimate":      n.IsLegitimate,
			"ring_id":            n.RingID,
		})
	}

	edges := make([]map[string]any, 0, len(graph.Edges))
	for _, e := range graph.Edges {
		edges = append(edges, map[string]any{
			"from_node": e.FromNode,
			"to_node":   e.ToNode,
			"value":     e.Value,
			"label":     e.Label,
		})
	}

	params := map[string]any{
		"tenant_id":   tenantID,
		"analysis_id": analysisID,
		"nodes":       nodes,
	}
	if _, err := session.Run(ctx, mergeNodesCypher, params); err != nil {
		return fmt.Errorf("export nodes: %w", err)
	}

	params = map[string]any{
		"tenant_id":   tenantID,
		"analysis_id": analysisID,
		"edges":       edges,
	}
	if _, err := session.Run(ctx, mergeEdgesCypher, params); err != nil {
		return fmt.Errorf("export edges: %w", err)
	}

	return nil
}

// VerifyConnectivity checks the Bolt connection.
func (c *Neo4jClient) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
