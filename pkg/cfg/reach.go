package cfg

import "github.com/l3aro/go-flowsplit/pkg/tree"

const (
	usedFlag uint8 = 1 << iota
	usedRecFlag
)

// Marks is the outcome of a reachability pass: which control points are
// reachable from the entry and which tree nodes they confirm.
type Marks struct {
	reached []bool
	used    map[*tree.Node]uint8
}

// Mark walks the graph from Start and confirms every subtree attached to a
// reached node.
func (g *Graph) Mark() *Marks {
	m := &Marks{
		reached: make([]bool, g.Len()),
		used:    make(map[*tree.Node]uint8),
	}
	if !g.Start.Valid() {
		return m
	}

	stack := []Node{g.Start}
	m.reached[g.Start] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, st := range g.subtrees[n] {
			m.confirm(st.Root, st.Recursive)
		}
		for _, next := range g.next[n] {
			if !m.reached[next] {
				m.reached[next] = true
				stack = append(stack, next)
			}
		}
	}
	return m
}

func (m *Marks) confirm(n *tree.Node, recursive bool) {
	f := m.used[n]
	if f&usedFlag != 0 && (!recursive || f&usedRecFlag != 0) {
		return
	}
	f |= usedFlag
	if !recursive {
		m.used[n] = f
		return
	}
	m.used[n] = f | usedRecFlag
	for _, c := range n.Children {
		m.confirm(c, true)
	}
}

// Reached reports whether n is reachable from the entry.
func (m *Marks) Reached(n Node) bool {
	return n.Valid() && int(n) < len(m.reached) && m.reached[n]
}

// Used reports whether some reached node confirms the tree node.
func (m *Marks) Used(n *tree.Node) bool {
	return m.used[n]&usedFlag != 0
}

// ReachedCount returns the number of reachable control points.
func (m *Marks) ReachedCount() int {
	c := 0
	for _, r := range m.reached {
		if r {
			c++
		}
	}
	return c
}

// Sweep replaces every maximal unused subtree of fn's body with an empty
// statement and returns the removed subtrees in tree order.
func Sweep(fn *tree.Function, m *Marks) []*tree.Node {
	var removed []*tree.Node
	tree.Rewrite(fn.BodySlot(), func(slot **tree.Node) bool {
		n := *slot
		if m.Used(n) {
			return true
		}
		removed = append(removed, n)
		*slot = &tree.Node{Kind: tree.Empty, Pos: n.Pos}
		return false
	})
	return removed
}
