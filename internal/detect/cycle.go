package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/graph"
)

// CycleDetector finds carousel schemes: funds returning to their origin
// through short directed cycles. Enumeration is localized to strongly
// connected components and hop-capped, with a budget on cycles inspected so
// pathological dense graphs degrade to partial results instead of hanging.
type CycleDetector struct {
	cfg domain.EngineConfig
}

// NewCycleDetector creates a cycle detector with the given thresholds.
func NewCycleDetector(cfg domain.EngineConfig) *CycleDetector {
	return &CycleDetector{cfg: cfg}
}

// Name implements Detector.
func (d *CycleDetector) Name() string { return "cycle" }

// Detect enumerates simple directed cycles of length CycleMinLength to
// CycleMaxLength over accounts that can participate in a cycle (in-degree and
// out-degree both >= 1), keeps only temporally feasible ones, and merges
// cycles sharing an identical member set into a single finding.
func (d *CycleDetector) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	var res Result

	// Prune nodes that cannot close a cycle before searching.
	candidates := make([]string, 0)
	for _, id := range g.AccountIDs() {
		acct := g.Account(id)
		if acct.InDegree >= 1 && acct.OutDegree >= 1 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) < d.cfg.CycleMinLength {
		return res, nil
	}

	search := newCycleSearch(g, candidates, d.cfg)
	cycles, truncated, err := search.run(ctx)
	if err != nil {
		return res, err
	}
	res.Truncated = truncated
	if truncated {
		res.Warnings = append(res.Warnings, domain.Warning{
			Code:    domain.WarnSearchBudgetExceeded,
			Message: fmt.Sprintf("cycle enumeration stopped after inspecting %d cycles, findings are partial", d.cfg.CycleBudget),
		})
	}

	// Dedup by member set: cycles over the same accounts are one ring.
	seen := make(map[string]bool, len(cycles))
	for _, cyc := range cycles {
		key := memberKey(cyc)
		if seen[key] {
			continue
		}
		seen[key] = true

		f := domain.Finding{
			Kind:        domain.PatternCycle,
			Members:     cyc,
			Points:      domain.PointsCycle,
			Ring:        true,
			Tags:        make(map[string][]string, len(cyc)),
			Explanation: make(map[string]string, len(cyc)),
		}
		for _, id := range cyc {
			f.Tags[id] = []string{fmt.Sprintf("cycle_length_%d", len(cyc))}
			f.Explanation[id] = fmt.Sprintf("Involved in a %d-step circular fund routing loop.", len(cyc))
		}
		res.Findings = append(res.Findings, f)
	}

	return res, nil
}

func memberKey(members []string) string {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// cycleSearch enumerates elementary circuits. It is a hop-capped variant of
// Johnson's algorithm: circuits are rooted at their smallest vertex (in index
// order) inside each strongly connected component, so every circuit is
// reported exactly once. The depth cap makes the blocked-set machinery of the
// full algorithm unnecessary.
type cycleSearch struct {
	g     *graph.Graph
	cfg   domain.EngineConfig
	ids   []string
	index map[string]int
	adj   [][]int

	inspected int
	truncated bool
	cycles    [][]string

	onPath []bool
	path   []int
}

func newCycleSearch(g *graph.Graph, candidates []string, cfg domain.EngineConfig) *cycleSearch {
	s := &cycleSearch{
		g:      g,
		cfg:    cfg,
		ids:    candidates,
		index:  make(map[string]int, len(candidates)),
		adj:    make([][]int, len(candidates)),
		onPath: make([]bool, len(candidates)),
	}
	for i, id := range candidates {
		s.index[id] = i
	}
	for i, id := range candidates {
		for _, succ := range g.Successors(id) {
			if j, ok := s.index[succ]; ok {
				s.adj[i] = append(s.adj[i], j)
			}
		}
	}
	return s
}

func (s *cycleSearch) run(ctx context.Context) ([][]string, bool, error) {
	comps := s.stronglyConnected()

	// Smallest-root-first keeps enumeration order deterministic.
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })

	for _, comp := range comps {
		if len(comp) < s.cfg.CycleMinLength {
			continue
		}
		inComp := make(map[int]bool, len(comp))
		for _, v := range comp {
			inComp[v] = true
		}
		for _, root := range comp {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			if s.truncated {
				return s.cycles, true, nil
			}
			s.path = s.path[:0]
			s.dfs(root, root, inComp)
		}
	}
	return s.cycles, s.truncated, nil
}

// dfs extends the current path from v, restricted to the component and to
// vertices with index >= root so each circuit is found once, at its smallest
// vertex.
func (s *cycleSearch) dfs(root, v int, inComp map[int]bool) {
	if s.truncated {
		return
	}
	s.path = append(s.path, v)
	s.onPath[v] = true

	for _, w := range s.adj[v] {
		if s.truncated {
			break
		}
		if w == root {
			if len(s.path) >= s.cfg.CycleMinLength {
				s.record()
			}
			continue
		}
		if w < root || !inComp[w] || s.onPath[w] {
			continue
		}
		if len(s.path) < s.cfg.CycleMaxLength {
			s.dfs(root, w, inComp)
		}
	}

	s.onPath[v] = false
	s.path = s.path[:len(s.path)-1]
}

// record applies the budget and the temporal feasibility check to the
// current path before accepting it as a cycle.
func (s *cycleSearch) record() {
	s.inspected++
	if s.cfg.CycleBudget > 0 && s.inspected > s.cfg.CycleBudget {
		s.truncated = true
		return
	}

	members := make([]string, len(s.path))
	for i, v := range s.path {
		members[i] = s.ids[v]
	}
	if s.feasible(members) {
		s.cycles = append(s.cycles, members)
	}
}

// feasible checks that the cycle's edges can be realized by transactions with
// non-decreasing timestamps in cycle order, within the configured max span.
// Every transaction on the first edge is tried as the anchor, because an
// early transfer between the first pair can sit far before the window in
// which the cycle actually closes. Subsequent hops are chosen greedily: the
// earliest transaction not before the previous hop.
func (s *cycleSearch) feasible(members []string) bool {
	for _, anchor := range s.g.EdgesBetween(members[0], members[1]) {
		start := anchor.Timestamp.UnixNano()
		current := start

		realized := true
		for i := 1; i < len(members); i++ {
			from := members[i]
			to := members[(i+1)%len(members)]

			matched := false
			for _, tx := range s.g.EdgesBetween(from, to) {
				if ts := tx.Timestamp.UnixNano(); ts >= current {
					current = ts
					matched = true
					break
				}
			}
			if !matched {
				realized = false
				break
			}
		}

		if realized && (s.cfg.CycleMaxSpan <= 0 || current-start <= s.cfg.CycleMaxSpan.Nanoseconds()) {
			return true
		}
		if s.cfg.CycleMaxSpan <= 0 {
			// Without a span cap the earliest anchor admits every realization
			// a later one would; no point retrying.
			return false
		}
	}
	return false
}

// stronglyConnected runs Tarjan's algorithm over the candidate subgraph.
func (s *cycleSearch) stronglyConnected() [][]int {
	n := len(s.ids)
	const unvisited = -1

	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = unvisited
	}

	var stack []int
	var comps [][]int
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		indexOf[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range s.adj[v] {
			if indexOf[w] == unvisited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indexOf[w] < lowlink[v] {
				lowlink[v] = indexOf[w]
			}
		}

		if lowlink[v] == indexOf[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Ints(comp)
			comps = append(comps, comp)
		}
	}

	for v := 0; v < n; v++ {
		if indexOf[v] == unvisited {
			strongconnect(v)
		}
	}
	return comps
}
