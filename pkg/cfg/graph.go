// Package cfg lowers a function tree into a flow graph of opaque control
// points, records variable usages and subtree confirmations on those points,
// and uses the graph's reachability to prune dead code from the tree.
package cfg

import (
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// Node is a control point handle, an index into the graph's side tables.
type Node int32

// NoNode is the unreachable handle. Edges touching it are dropped.
const NoNode Node = -1

// Valid reports whether n is a real node.
func (n Node) Valid() bool { return n >= 0 }

// UsageType tags a variable occurrence.
type UsageType uint8

const (
	Read UsageType = iota
	Write
)

func (t UsageType) String() string {
	if t == Write {
		return "write"
	}
	return "read"
}

// Usage is one occurrence of a tracked variable, bound to the node where it
// becomes observable.
type Usage struct {
	ID        int
	Part      int
	Type      UsageType
	WeakWrite bool
	// Guarded reads sit under isset, empty or unset, which accept an
	// unset variable.
	Guarded bool
	Ref     *tree.Node
	Node    Node
}

// Var returns the variable the occurrence currently points at.
func (u *Usage) Var() *tree.Var {
	return u.Ref.Var
}

// Writes reports whether the usage may store into the variable.
func (u *Usage) Writes() bool {
	return u.Type == Write || u.WeakWrite
}

// UsageRegistry mints usages for variable occurrences. It returns nil for
// variables it does not track.
type UsageRegistry interface {
	NewUsage(typ UsageType, ref *tree.Node) *Usage
}

// Subtree ties a tree node to the control point that enters it.
type Subtree struct {
	Root      *tree.Node
	Recursive bool
}

// Graph is the flow graph of one function.
type Graph struct {
	Start  Node
	Finish Node

	next     [][]Node
	prev     [][]Node
	usages   [][]*Usage
	subtrees [][]Subtree
}

func newGraph() *Graph {
	return &Graph{Start: NoNode, Finish: NoNode}
}

// NewNode appends a fresh control point.
func (g *Graph) NewNode() Node {
	n := Node(len(g.next))
	g.next = append(g.next, nil)
	g.prev = append(g.prev, nil)
	g.usages = append(g.usages, nil)
	g.subtrees = append(g.subtrees, nil)
	return n
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.next)
}

// AddEdge connects from to to. Either end may be NoNode.
func (g *Graph) AddEdge(from, to Node) {
	if !from.Valid() || !to.Valid() {
		return
	}
	g.next[from] = append(g.next[from], to)
	g.prev[to] = append(g.prev[to], from)
}

// Next returns the successors of n.
func (g *Graph) Next(n Node) []Node { return g.next[n] }

// Prev returns the predecessors of n.
func (g *Graph) Prev(n Node) []Node { return g.prev[n] }

// Usages returns the usages attached to n.
func (g *Graph) Usages(n Node) []*Usage { return g.usages[n] }

// Subtrees returns the confirmations attached to n.
func (g *Graph) Subtrees(n Node) []Subtree { return g.subtrees[n] }

// AddUsage attaches u to n. A node carries either reads or writes, never both.
func (g *Graph) AddUsage(n Node, u *Usage) {
	if u == nil {
		return
	}
	if len(g.usages[n]) > 0 && g.usages[n][0].Type != u.Type {
		tree.Failf(u.Ref.Pos, "node %d mixes %s and %s usages", n, g.usages[n][0].Type, u.Type)
	}
	u.Node = n
	g.usages[n] = append(g.usages[n], u)
}

// AddSubtree attaches a confirmation for root to n.
func (g *Graph) AddSubtree(n Node, root *tree.Node, recursive bool) {
	if !n.Valid() || root == nil {
		return
	}
	g.subtrees[n] = append(g.subtrees[n], Subtree{Root: root, Recursive: recursive})
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	c := 0
	for _, out := range g.next {
		c += len(out)
	}
	return c
}
