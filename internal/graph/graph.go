// Package graph implements the transaction graph synthesis engine: a directed
// multigraph over accounts, built once per analysis run and shared read-only
// with every detector for the run's lifetime.
package graph

import (
	"fmt"
	"sort"

	"github.com/open-forensics/muletrace/internal/domain"
)

// Graph is an immutable-per-run directed multigraph of money transfers.
// Parallel edges between the same ordered account pair are preserved.
type Graph struct {
	accounts map[string]*domain.Account
	outbound map[string][]domain.Transaction
	inbound  map[string][]domain.Transaction

	succ map[string][]string // sorted distinct successors
	pred map[string][]string // sorted distinct predecessors

	order   []string // account ids, sorted for deterministic iteration
	txCount int
}

// PairEdge is the aggregate of all transactions for one ordered account pair.
type PairEdge struct {
	From        string
	To          string
	TotalAmount float64
	Count       int
}

// Build synthesizes the graph from a transaction sequence in one O(E) pass
// plus the per-account O(N log N) sorts. Duplicated transaction ids keep the
// first occurrence and surface a DuplicateTransactionID warning; structurally
// invalid transactions are skipped with an IngestionError warning. An empty
// input yields an empty graph, not an error.
func Build(txs []domain.Transaction) (*Graph, []domain.Warning) {
	g := &Graph{
		accounts: make(map[string]*domain.Account),
		outbound: make(map[string][]domain.Transaction),
		inbound:  make(map[string][]domain.Transaction),
		succ:     make(map[string][]string),
		pred:     make(map[string][]string),
	}

	var warnings []domain.Warning
	seen := make(map[string]bool, len(txs))

	for _, tx := range txs {
		if tx.ID == "" || tx.SenderID == "" || tx.ReceiverID == "" || tx.Amount < 0 || tx.Timestamp.IsZero() {
			warnings = append(warnings, domain.Warning{
				Code:    domain.WarnIngestion,
				Message: fmt.Sprintf("skipped malformed transaction %q", tx.ID),
			})
			continue
		}
		if seen[tx.ID] {
			warnings = append(warnings, domain.Warning{
				Code:    domain.WarnDuplicateTransaction,
				Message: fmt.Sprintf("duplicate transaction id %q, first occurrence kept", tx.ID),
			})
			continue
		}
		seen[tx.ID] = true

		g.outbound[tx.SenderID] = append(g.outbound[tx.SenderID], tx)
		g.inbound[tx.ReceiverID] = append(g.inbound[tx.ReceiverID], tx)
		g.ensureAccount(tx.SenderID)
		g.ensureAccount(tx.ReceiverID)
		g.txCount++
	}

	g.finalize()
	return g, warnings
}

func (g *Graph) ensureAccount(id string) {
	if _, ok := g.accounts[id]; !ok {
		g.accounts[id] = &domain.Account{ID: id}
	}
}

// finalize sorts edge lists, materializes per-account transaction views and
// computes the aggregates in a single sweep.
func (g *Graph) finalize() {
	g.order = make([]string, 0, len(g.accounts))
	for id := range g.accounts {
		g.order = append(g.order, id)
	}
	sort.Strings(g.order)

	for _, id := range g.order {
		out := g.outbound[id]
		in := g.inbound[id]
		sortChronological(out)
		sortChronological(in)

		acct := g.accounts[id]
		acct.TxCount = len(out) + len(in)

		merged := make([]domain.Transaction, 0, acct.TxCount)
		merged = append(merged, out...)
		merged = append(merged, in...)
		sortChronological(merged)
		acct.Transactions = merged

		succSet := make(map[string]bool)
		for _, tx := range out {
			acct.TotalOut += tx.Amount
			succSet[tx.ReceiverID] = true
		}
		predSet := make(map[string]bool)
		for _, tx := range in {
			acct.TotalIn += tx.Amount
			predSet[tx.SenderID] = true
		}

		g.succ[id] = sortedKeys(succSet)
		g.pred[id] = sortedKeys(predSet)
		acct.OutDegree = len(g.succ[id])
		acct.InDegree = len(g.pred[id])

		if len(merged) > 0 {
			acct.FirstActivity = merged[0].Timestamp
			acct.LastActivity = merged[len(merged)-1].Timestamp
		}
	}
}

// sortChronological orders transactions by timestamp ascending, stable on
// timestamp ties by transaction id.
func sortChronological(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Account returns the account for an id, or nil when unknown.
func (g *Graph) Account(id string) *domain.Account {
	return g.accounts[id]
}

// AccountIDs returns all account ids in sorted order.
func (g *Graph) AccountIDs() []string {
	return g.order
}

// AccountCount returns the number of materialized accounts.
func (g *Graph) AccountCount() int {
	return len(g.accounts)
}

// TxCount returns the number of ingested transactions.
func (g *Graph) TxCount() int {
	return g.txCount
}

// Outbound returns the chronologically sorted outgoing transactions of id.
func (g *Graph) Outbound(id string) []domain.Transaction {
	return g.outbound[id]
}

// Inbound returns the chronologically sorted incoming transactions of id.
func (g *Graph) Inbound(id string) []domain.Transaction {
	return g.inbound[id]
}

// Successors returns the sorted distinct receivers id has sent to.
func (g *Graph) Successors(id string) []string {
	return g.succ[id]
}

// Predecessors returns the sorted distinct senders id has received from.
func (g *Graph) Predecessors(id string) []string {
	return g.pred[id]
}

// EdgesBetween returns the chronologically sorted transactions from -> to.
func (g *Graph) EdgesBetween(from, to string) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range g.outbound[from] {
		if tx.ReceiverID == to {
			out = append(out, tx)
		}
	}
	return out
}

// PairEdges returns the aggregated edge list restricted to the given node
// set (all nodes when the set is nil), sorted by (from, to).
func (g *Graph) PairEdges(within map[string]bool) []PairEdge {
	agg := make(map[[2]string]*PairEdge)
	for _, id := range g.order {
		if within != nil && !within[id] {
			continue
		}
		for _, tx := range g.outbound[id] {
			if within != nil && !within[tx.ReceiverID] {
				continue
			}
			key := [2]string{tx.SenderID, tx.ReceiverID}
			pe, ok := agg[key]
			if !ok {
				pe = &PairEdge{From: tx.SenderID, To: tx.ReceiverID}
				agg[key] = pe
			}
			pe.TotalAmount += tx.Amount
			pe.Count++
		}
	}

	edges := make([]PairEdge, 0, len(agg))
	for _, pe := range agg {
		edges = append(edges, *pe)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From == edges[j].From {
			return edges[i].To < edges[j].To
		}
		return edges[i].From < edges[j].From
	})
	return edges
}
