package tree

// Inspect visits n and its descendants in pre-order. Children are skipped
// when fn returns false.
func Inspect(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Inspect(c, fn)
	}
}

// Rewrite visits every child slot below *slot in pre-order. fn may replace
// the node in place; children are skipped when it returns false.
func Rewrite(slot **Node, fn func(slot **Node) bool) {
	if *slot == nil || !fn(slot) {
		return
	}
	for i := range (*slot).Children {
		Rewrite(&(*slot).Children[i], fn)
	}
}

// Count returns the number of nodes in the subtree.
func Count(n *Node) int {
	c := 0
	Inspect(n, func(*Node) bool {
		c++
		return true
	})
	return c
}

// Occurrences returns every occurrence of v below n.
func Occurrences(n *Node, v *Var) []*Node {
	var out []*Node
	Inspect(n, func(x *Node) bool {
		if x.Kind == VarRef && x.Var == v {
			out = append(out, x)
		}
		return true
	})
	return out
}

// RefVars collects variables that occur by reference anywhere below n.
func RefVars(n *Node) map[*Var]bool {
	ref := make(map[*Var]bool)
	Inspect(n, func(x *Node) bool {
		if x.Kind == VarRef && x.Ref && x.Var != nil {
			ref[x.Var] = true
		}
		return true
	})
	return ref
}
