package dfg

import (
	"golang.org/x/tools/container/intsets"

	"github.com/l3aro/go-flowsplit/pkg/cfg"
)

// Direction selects which edges a search follows.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

// Verdict tells a search what to do after visiting a node.
type Verdict uint8

const (
	Continue Verdict = iota // expand the node's neighbours
	Prune                   // do not expand this node
	Stop                    // end the search
)

// Search is a depth-first traversal over a flow graph. Its buffers are
// reused between runs.
type Search struct {
	g     *cfg.Graph
	seen  intsets.Sparse
	stack []cfg.Node
}

// NewSearch creates a search over g.
func NewSearch(g *cfg.Graph) *Search {
	return &Search{g: g}
}

// Run visits every node reachable from from in direction dir, each at most
// once, until visit returns Stop. It returns the node the search stopped
// at, or cfg.NoNode when it ran out of nodes.
func (s *Search) Run(from cfg.Node, dir Direction, visit func(cfg.Node) Verdict) cfg.Node {
	s.seen.Clear()
	if !from.Valid() {
		return cfg.NoNode
	}

	s.stack = append(s.stack[:0], from)
	for len(s.stack) > 0 {
		n := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		// Marked on visit, not on push, to keep the order depth-first.
		if !s.seen.Insert(int(n)) {
			continue
		}

		switch visit(n) {
		case Stop:
			return n
		case Prune:
			continue
		}

		adj := s.g.Next(n)
		if dir == Backward {
			adj = s.g.Prev(n)
		}
		// Push in reverse so the first edge is explored first.
		for i := len(adj) - 1; i >= 0; i-- {
			if !s.seen.Has(int(adj[i])) {
				s.stack = append(s.stack, adj[i])
			}
		}
	}
	return cfg.NoNode
}

// Visited reports whether the last run reached n.
func (s *Search) Visited(n cfg.Node) bool {
	return n.Valid() && s.seen.Has(int(n))
}
