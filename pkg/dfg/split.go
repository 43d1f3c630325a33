package dfg

import (
	"fmt"

	"github.com/l3aro/go-flowsplit/pkg/cfg"
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// Split records how one variable was partitioned.
type Split struct {
	Original *tree.Var
	// Parts holds the occurrences of each live range, in part order.
	Parts [][]*tree.Node
	// Vars holds the variable each part was assigned, in part order.
	Vars []*tree.Var
	// Dropped is set when no occurrence was reachable and the local was
	// removed from the function.
	Dropped bool
}

// SplitVars partitions every tracked variable of fn into live ranges and
// gives each range of a multi-range variable its own identity. Only usages
// on nodes reached by marks take part. Variables with a single live range
// are left alone and are not reported.
func SplitVars(fn *tree.Function, g *cfg.Graph, marks *cfg.Marks, ctxs *Contexts, factory tree.VarFactory) []*Split {
	s := NewSearch(g)
	owner := make([]*cfg.Usage, g.Len())

	var out []*Split
	for _, c := range ctxs.All() {
		if c.Var.Kind == tree.Inplace {
			continue
		}
		clear(owner)
		link(s, g, c, owner)

		parts := numberParts(c, marks)
		switch {
		case parts == 0:
			if c.Var.Kind == tree.Local {
				fn.RemoveLocal(c.Var)
				out = append(out, &Split{Original: c.Var, Dropped: true})
			}
		case parts > 1:
			out = append(out, rewrite(fn, c, marks, parts, factory))
		}
	}
	return out
}

// link walks backwards from every usage and merges it with the usages it
// can see without crossing a write. owner remembers which usage first
// walked through a node; a later walk arriving there merges with that
// usage and goes no further.
func link(s *Search, g *cfg.Graph, c *Context, owner []*cfg.Usage) {
	for _, u := range c.Usages {
		if !u.Node.Valid() {
			continue
		}
		s.Run(u.Node, Backward, func(n cfg.Node) Verdict {
			if other := owner[n]; other != nil {
				c.TryMerge(u, other)
				return Prune
			}
			owner[n] = u

			shadowed := false
			for _, another := range g.Usages(n) {
				if c.TryMerge(u, another) && another.Type == cfg.Write {
					shadowed = true
				}
			}
			if shadowed {
				return Prune
			}
			return Continue
		})
	}
}

// numberParts assigns dense part ids in usage creation order and returns
// how many parts there are.
func numberParts(c *Context, marks *cfg.Marks) int {
	parts := 0
	for _, u := range c.Usages {
		if !marks.Reached(u.Node) {
			continue
		}
		root := c.Find(u)
		if root.Part == -1 {
			root.Part = parts
			parts++
		}
		u.Part = root.Part
	}
	return parts
}

func rewrite(fn *tree.Function, c *Context, marks *cfg.Marks, parts int, factory tree.VarFactory) *Split {
	orig := c.Var
	res := &Split{Original: orig, Parts: make([][]*tree.Node, parts)}
	for _, u := range c.Usages {
		if marks.Reached(u.Node) {
			res.Parts[u.Part] = append(res.Parts[u.Part], u.Ref)
		}
	}

	var binding *tree.Node
	if orig.Kind == tree.Param {
		binding = fn.ParamBinding(orig.ParamIndex)
	}

	for i, occ := range res.Parts {
		nv := factory.NewVar(fmt.Sprintf("%s$v_%d", orig.Name, i), tree.Local)
		holdsBinding := false
		for _, ref := range occ {
			ref.Var = nv
			if ref == binding {
				holdsBinding = true
			}
		}
		if holdsBinding {
			fn.SetParam(orig.ParamIndex, nv, orig.Default)
		} else {
			fn.AddLocal(nv)
		}
		res.Vars = append(res.Vars, nv)
	}

	switch orig.Kind {
	case tree.Local:
		tree.Assert(fn.RemoveLocal(orig), fn.Pos, "split local $%s is not in the variable table of %s", orig.Name, fn.Name)
	case tree.Param:
		tree.Assert(fn.Params[orig.ParamIndex] != orig, fn.Pos, "no part of parameter $%s kept its binding", orig.Name)
	}
	return res
}

// RestoreOrphans re-adds the original variable of a split as a local when
// occurrences of it survived outside every part, which happens for code
// that is kept by the sweep without being reachable (an unreached catch
// clause, for instance).
func RestoreOrphans(fn *tree.Function, splits []*Split) []*tree.Var {
	var restored []*tree.Var
	for _, s := range splits {
		if len(tree.Occurrences(fn.Root, s.Original)) == 0 {
			continue
		}
		fn.AddLocal(s.Original)
		restored = append(restored, s.Original)
	}
	return restored
}
