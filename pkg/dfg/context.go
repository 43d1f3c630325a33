package dfg

import (
	"github.com/l3aro/go-flowsplit/pkg/cfg"
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// Context is the split state of one variable: its usages in creation order
// and the forest grouping them into live ranges.
type Context struct {
	Var    *tree.Var
	Usages []*cfg.Usage
	forest Forest
}

func (c *Context) owns(u *cfg.Usage) bool {
	return u.ID >= 0 && u.ID < len(c.Usages) && c.Usages[u.ID] == u
}

// TryMerge joins the live ranges of a and b. Usages of different variables
// are never merged and report false.
func (c *Context) TryMerge(a, b *cfg.Usage) bool {
	if a.Var() != b.Var() {
		return false
	}
	tree.Assert(c.owns(a) && c.owns(b), a.Ref.Pos, "usages of $%s merged outside their split context", a.Var().Name)
	c.forest.Union(a.ID, b.ID)
	return true
}

// Find returns the representative usage of u's live range.
func (c *Context) Find(u *cfg.Usage) *cfg.Usage {
	return c.Usages[c.forest.Find(u.ID)]
}

// Same reports whether a and b are in the same live range.
func (c *Context) Same(a, b *cfg.Usage) bool {
	return c.forest.Find(a.ID) == c.forest.Find(b.ID)
}

// Contexts holds a split context per splittable variable of one function.
// It is the usage registry the graph builder mints usages through.
type Contexts struct {
	order []*Context
	byVar map[*tree.Var]*Context
}

// NewContexts creates contexts for vars, in order.
func NewContexts(vars []*tree.Var) *Contexts {
	cs := &Contexts{byVar: make(map[*tree.Var]*Context, len(vars))}
	for _, v := range vars {
		c := &Context{Var: v}
		cs.order = append(cs.order, c)
		cs.byVar[v] = c
	}
	return cs
}

// NewUsage implements cfg.UsageRegistry.
func (cs *Contexts) NewUsage(typ cfg.UsageType, ref *tree.Node) *cfg.Usage {
	c := cs.byVar[ref.Var]
	if c == nil {
		return nil
	}
	u := &cfg.Usage{
		ID:   c.forest.Add(),
		Part: -1,
		Type: typ,
		Ref:  ref,
		Node: cfg.NoNode,
	}
	c.Usages = append(c.Usages, u)
	return u
}

// Lookup returns v's context or nil.
func (cs *Contexts) Lookup(v *tree.Var) *Context {
	return cs.byVar[v]
}

// Context returns v's context. v must be tracked.
func (cs *Contexts) Context(v *tree.Var) *Context {
	c := cs.byVar[v]
	if c == nil {
		tree.Failf(tree.Pos{}, "no split context for $%s", v.Name)
	}
	return c
}

// TryMerge joins a and b when they belong to the same variable.
func (cs *Contexts) TryMerge(a, b *cfg.Usage) bool {
	if a.Var() != b.Var() {
		return false
	}
	return cs.Context(a.Var()).TryMerge(a, b)
}

// All returns the contexts in creation order.
func (cs *Contexts) All() []*Context {
	return cs.order
}

// Len returns the number of tracked variables.
func (cs *Contexts) Len() int {
	return len(cs.order)
}

// SplittableVars returns the variables of fn eligible for splitting: plain
// locals followed by by-value parameters, minus anything that occurs by
// reference anywhere in the function. A function that reaches variables by
// name at run time has none.
func SplittableVars(fn *tree.Function) []*tree.Var {
	if fn.Dynamic {
		return nil
	}
	ref := tree.RefVars(fn.Root)

	var out []*tree.Var
	for _, v := range fn.Locals {
		if v.Kind == tree.Local && !ref[v] {
			out = append(out, v)
		}
	}
	for i, v := range fn.Params {
		binding := fn.ParamBinding(i)
		if binding == nil || binding.Kind != tree.VarRef {
			tree.Failf(fn.Pos, "parameter %d of %s has no binding", i, fn.Name)
		}
		if !binding.Ref && !ref[v] {
			out = append(out, v)
		}
	}
	return out
}
