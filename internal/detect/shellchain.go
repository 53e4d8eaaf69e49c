package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// ShellChainDetector identifies layered obfuscation: chains of bridge
// accounts with almost no activity that receive funds and pass them on
// within a short residence time.
type ShellChainDetector struct {
	cfg domain.EngineConfig
}

// NewShellChainDetector creates a shell chain detector.
func NewShellChainDetector(cfg domain.EngineConfig) *ShellChainDetector {
	return &ShellChainDetector{cfg: cfg}
}

// Name implements Detector.
func (d *ShellChainDetector) Name() string { return "shell-chain" }

// Detect classifies bridge candidates (transaction count within the
// configured band, residence time below the threshold, linear pass-through)
// and assembles maximal linear chains through them with a single traversal,
// O(V+E). Chains of at least ShellMinChainLength accounts become rings.
func (d *ShellChainDetector) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	var res Result

	bridges := make(map[string]bool)
	for _, id := range g.AccountIDs() {
		if d.isBridge(g, id) {
			bridges[id] = true
		}
	}
	if len(bridges) < d.cfg.ShellMinChainLength {
		return res, nil
	}

	visited := make(map[string]bool, len(bridges))
	for _, id := range g.AccountIDs() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !bridges[id] || visited[id] {
			continue
		}
		// Only start chains at their head: a bridge not uniquely linked from
		// another bridge. Pure bridge cycles are the cycle detector's job.
		if prev, ok := d.bridgePredecessor(g, bridges, id); ok {
			if next, linked := d.bridgeSuccessor(g, bridges, prev); linked && next == id {
				continue
			}
		}

		chain := d.walkChain(g, bridges, visited, id)
		if len(chain) < d.cfg.ShellMinChainLength {
			continue
		}

		f := domain.Finding{
			Kind:        domain.PatternShellChain,
			Members:     chain,
			Points:      domain.PointsShellChain,
			Ring:        true,
			Tags:        make(map[string][]string, len(chain)),
			Explanation: make(map[string]string, len(chain)),
		}
		for _, member := range chain {
			f.Tags[member] = []string{"shell_chain"}
			f.Explanation[member] = fmt.Sprintf("Part of a %d-hop layered shell network.", len(chain))
		}
		res.Findings = append(res.Findings, f)
	}

	return res, nil
}

// walkChain follows the unique bridge-to-bridge links forward from head.
func (d *ShellChainDetector) walkChain(g *graph.Graph, bridges, visited map[string]bool, head string) []string {
	chain := []string{head}
	visited[head] = true
	current := head
	for {
		next, ok := d.bridgeSuccessor(g, bridges, current)
		if !ok || visited[next] {
			break
		}
		chain = append(chain, next)
		visited[next] = true
		current = next
	}
	return chain
}

// bridgeSuccessor returns the single candidate successor of id, if id has
// exactly one successor within the candidate subgraph.
func (d *ShellChainDetector) bridgeSuccessor(g *graph.Graph, bridges map[string]bool, id string) (string, bool) {
	var next string
	count := 0
	for _, succ := range g.Successors(id) {
		if bridges[succ] {
			next = succ
			count++
		}
	}
	return next, count == 1
}

func (d *ShellChainDetector) bridgePredecessor(g *graph.Graph, bridges map[string]bool, id string) (string, bool) {
	var prev string
	count := 0
	for _, pred := range g.Predecessors(id) {
		if bridges[pred] {
			prev = pred
			count++
		}
	}
	return prev, count == 1
}

// isBridge reports whether an account fits the bridge profile: minimal
// activity, one counterparty on each side, and funds forwarded quickly.
func (d *ShellChainDetector) isBridge(g *graph.Graph, id string) bool {
	acct := g.Account(id)
	if acct.IsLegitimateHub {
		return false
	}
	if acct.TxCount < d.cfg.ShellMinTxCount || acct.TxCount > d.cfg.ShellMaxTxCount {
		return false
	}
	if acct.InDegree != 1 || acct.OutDegree != 1 {
		return false
	}

	residence, ok := residenceTime(g.Inbound(id), g.Outbound(id))
	if !ok {
		return false
	}
	return residence <= d.cfg.ShellMaxResidence
}

// residenceTime is the maximal gap between an inbound transaction and the
// next outbound one. Both lists must be sorted chronologically. Returns
// false when no inbound transaction is followed by an outbound one.
func residenceTime(in, out []domain.Transaction) (time.Duration, bool) {
	var maxGap time.Duration
	found := false
	j := 0
	for _, inTx := range in {
		for j < len(out) && out[j].Timestamp.Before(inTx.Timestamp) {
			j++
		}
		if j >= len(out) {
			break
		}
		gap := out[j].Timestamp.Sub(inTx.Timestamp)
		if !found || gap > maxGap {
			maxGap = gap
			found = true
		}
	}
	return maxGap, found
}
