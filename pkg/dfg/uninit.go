package dfg

import (
	"github.com/l3aro/go-flowsplit/pkg/cfg"
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// DetectUninitialized returns, for each tracked local, the first read
// reachable from the entry along a path with no write or weak write of the
// variable. At most one read is reported per variable. Reads under isset,
// empty or unset are passed over. Parameters and placement-locals are never
// reported.
func DetectUninitialized(g *cfg.Graph, ctxs *Contexts) []*cfg.Usage {
	s := NewSearch(g)

	var out []*cfg.Usage
	for _, c := range ctxs.All() {
		if c.Var.Kind == tree.Param || c.Var.Kind == tree.Inplace {
			continue
		}
		if u := firstUninitialized(s, g, c.Var); u != nil {
			c.Var.Uninited = true
			out = append(out, u)
		}
	}
	return out
}

func firstUninitialized(s *Search, g *cfg.Graph, v *tree.Var) *cfg.Usage {
	var found *cfg.Usage
	s.Run(g.Start, Forward, func(n cfg.Node) Verdict {
		var read *cfg.Usage
		for _, u := range g.Usages(n) {
			if u.Var() != v {
				continue
			}
			if u.Writes() {
				return Prune
			}
			if read == nil && !u.Guarded {
				read = u
			}
		}
		if read != nil {
			found = read
			return Stop
		}
		return Continue
	})
	return found
}
