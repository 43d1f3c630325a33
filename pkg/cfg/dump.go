package cfg

import (
	"fmt"
	"io"
	"strings"
)

func (u *Usage) String() string {
	kind := u.Type.String()
	if u.WeakWrite {
		kind = "weak"
	}
	name := "?"
	if u.Ref != nil && u.Ref.Var != nil {
		name = u.Ref.Var.Name
	}
	if u.Part >= 0 {
		return fmt.Sprintf("%s $%s/%d", kind, name, u.Part)
	}
	return fmt.Sprintf("%s $%s", kind, name)
}

func (s Subtree) String() string {
	label := s.Root.Kind.String()
	if s.Recursive {
		label += "*"
	}
	return fmt.Sprintf("%s@%s", label, s.Root.Pos)
}

// Info exports the graph. marks may be nil.
func (g *Graph) Info(name string, marks *Marks) *GraphInfo {
	info := &GraphInfo{
		FunctionName: name,
		Nodes:        make([]NodeInfo, 0, g.Len()),
		EntryNodeID:  int(g.Start),
		ExitNodeID:   int(g.Finish),
	}

	reachedNodes, reachedEdges := 0, 0
	for i := 0; i < g.Len(); i++ {
		n := Node(i)
		ni := NodeInfo{ID: i, Reached: marks != nil && marks.Reached(n)}
		for _, u := range g.usages[n] {
			ni.Usages = append(ni.Usages, u.String())
		}
		for _, st := range g.subtrees[n] {
			ni.Subtrees = append(ni.Subtrees, st.String())
		}
		info.Nodes = append(info.Nodes, ni)

		if ni.Reached {
			reachedNodes++
		}
		for _, next := range g.next[n] {
			et := EdgeTypeFlow
			if next <= n {
				et = EdgeTypeBackEdge
			}
			info.Edges = append(info.Edges, EdgeInfo{SourceID: i, TargetID: int(next), EdgeType: et})
			if ni.Reached {
				reachedEdges++
			}
		}
	}

	// E - N + 2 over the reachable part of the graph
	if reachedNodes > 0 {
		info.CyclomaticComplexity = reachedEdges - reachedNodes + 2
	} else {
		info.CyclomaticComplexity = 1
	}
	return info
}

// Dump writes a human readable listing of the graph.
func (g *Graph) Dump(w io.Writer, marks *Marks) error {
	for i := 0; i < g.Len(); i++ {
		n := Node(i)
		var sb strings.Builder
		fmt.Fprintf(&sb, "%4d", i)
		switch {
		case n == g.Start:
			sb.WriteString(" [start]")
		case n == g.Finish:
			sb.WriteString(" [finish]")
		}
		if marks != nil && !marks.Reached(n) {
			sb.WriteString(" [dead]")
		}
		if next := g.next[n]; len(next) > 0 {
			sb.WriteString(" ->")
			for _, m := range next {
				fmt.Fprintf(&sb, " %d", m)
			}
		}
		for _, u := range g.usages[n] {
			fmt.Fprintf(&sb, " {%s}", u)
		}
		for _, st := range g.subtrees[n] {
			fmt.Fprintf(&sb, " <%s>", st)
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteDOT writes the graph in Graphviz format.
func (g *Graph) WriteDOT(w io.Writer, name string, marks *Marks) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", name)
	sb.WriteString("  node [shape=box fontname=monospace];\n")
	for i := 0; i < g.Len(); i++ {
		n := Node(i)
		labels := []string{fmt.Sprint(i)}
		for _, u := range g.usages[n] {
			labels = append(labels, u.String())
		}
		style := ""
		if marks != nil && !marks.Reached(n) {
			style = " style=dashed"
		}
		fmt.Fprintf(&sb, "  n%d [label=\"%s\"%s];\n", i, strings.Join(labels, `\n`), style)
		for _, next := range g.next[n] {
			fmt.Fprintf(&sb, "  n%d -> n%d;\n", i, next)
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
