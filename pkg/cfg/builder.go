package cfg

import (
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

type builder struct {
	g   *Graph
	reg UsageRegistry

	breaks     targets
	continues  targets
	exceptions targets
}

// Build lowers fn into a flow graph. Usages are minted through reg, which
// may be nil when only reachability is wanted.
func Build(fn *tree.Function, reg UsageRegistry) *Graph {
	b := &builder{g: newGraph(), reg: reg}
	b.g.Start, b.g.Finish = b.build(fn.Root, false, false)
	return b.g
}

func (b *builder) node() Node {
	return b.g.NewNode()
}

func (b *builder) edge(from, to Node) {
	b.g.AddEdge(from, to)
}

func (b *builder) usage(typ UsageType, ref *tree.Node, weak bool) *Usage {
	if b.reg == nil || ref == nil || ref.Kind != tree.VarRef || ref.Var == nil {
		return nil
	}
	u := b.reg.NewUsage(typ, ref)
	if u != nil {
		u.WeakWrite = weak
	}
	return u
}

func (b *builder) enterLoop() {
	b.breaks.push()
	b.continues.push()
}

func (b *builder) exitLoop(continueTo, breakTo Node) {
	for _, n := range b.continues.pop() {
		b.edge(n, continueTo)
	}
	for _, n := range b.breaks.pop() {
		b.edge(n, breakTo)
	}
}

// build lowers a node in linear context. write marks the node as an
// assignment target; weak marks it as a possible store through a reference.
func (b *builder) build(n *tree.Node, write, weak bool) (start, finish Node) {
	recursive := false

	switch n.Kind {
	case tree.Seq, tree.Comma, tree.Array, tree.Pair, tree.Params:
		start, finish = b.chain(n.Children)

	case tree.Empty, tree.Int, tree.Float, tree.String, tree.True, tree.False, tree.Null, tree.Const:
		start = b.node()
		finish = start

	case tree.Not:
		start, finish = b.build(n.Child(0), false, false)

	case tree.Conv:
		start, finish = b.build(n.Child(0), false, false)

	case tree.Eq, tree.Neq:
		rhs := n.Child(1)
		if rhs.Kind != tree.False && rhs.Kind != tree.Null {
			return b.buildOpaque(n)
		}
		var lhsFinish, rhsStart Node
		start, lhsFinish = b.build(n.Child(0), false, false)
		rhsStart, finish = b.build(rhs, false, false)
		b.edge(lhsFinish, rhsStart)

	case tree.Index:
		start, finish = b.build(n.Child(0), false, write || weak)
		if key := n.Child(1); key != nil {
			keyStart, keyFinish := b.build(key, false, false)
			b.edge(keyFinish, start)
			start = keyStart
		}

	case tree.And, tree.Or:
		lhsStart, lhsFinish := b.build(n.Child(0), false, false)
		rhsStart, rhsFinish := b.build(n.Child(1), false, false)
		finish = b.node()
		b.edge(lhsFinish, rhsStart)
		b.edge(rhsFinish, finish)
		b.edge(lhsFinish, finish)
		start = lhsStart

	case tree.Call:
		start, finish = b.buildCall(n)

	case tree.Return:
		if expr := n.Child(0); expr != nil {
			start, _ = b.build(expr, false, false)
		} else {
			start = b.node()
		}
		finish = NoNode

	case tree.Assign:
		var rhsFinish, lhsStart Node
		start, rhsFinish = b.build(n.Child(1), false, false)
		lhsStart, finish = b.build(n.Child(0), true, false)
		b.edge(rhsFinish, lhsStart)

	case tree.AssignOp:
		var rhsFinish, lhsStart Node
		start, rhsFinish = b.build(n.Child(1), false, false)
		lhsStart, finish = b.buildOpaque(n.Child(0))
		b.edge(rhsFinish, lhsStart)

	case tree.List:
		start, finish = b.build(n.Child(0), false, false)
		for i := len(n.Children) - 1; i >= 1; i-- {
			s, f := b.build(n.Children[i], true, false)
			b.edge(finish, s)
			finish = f
		}

	case tree.VarRef:
		start = b.node()
		finish = start
		typ := Read
		if write {
			typ = Write
		}
		b.g.AddUsage(start, b.usage(typ, n, weak))

	case tree.ParamDecl:
		start, finish = b.build(n.Child(0), true, false)
		recursive = true

	case tree.If:
		start, finish = b.buildIf(n.Child(0), n.Child(1), n.Child(2))

	case tree.Ternary:
		start, finish = b.buildIf(n.Child(0), n.Child(1), n.Child(2))

	case tree.Break:
		start = b.node()
		finish = NoNode
		b.breaks.add(start, n.Depth, n.Pos, "break")
		recursive = true

	case tree.Continue:
		start = b.node()
		finish = NoNode
		b.continues.add(start, n.Depth, n.Pos, "continue")
		recursive = true

	case tree.For:
		start, finish = b.buildFor(n)

	case tree.While:
		start, finish = b.buildLoop(n.Child(0), n.Child(1), false)

	case tree.Do:
		start, finish = b.buildLoop(n.Child(1), n.Child(0), true)

	case tree.Foreach:
		start, finish = b.buildForeach(n)

	case tree.Switch:
		start, finish = b.buildSwitch(n)

	case tree.Throw:
		var exprFinish Node
		start, exprFinish = b.build(n.Child(0), false, false)
		b.exceptions.register(exprFinish)
		finish = b.node()

	case tree.Try:
		start, finish = b.buildTry(n)

	case tree.Func:
		var paramsFinish, bodyStart Node
		start, paramsFinish = b.build(n.Child(0), false, false)
		bodyStart, finish = b.build(n.Child(1), false, false)
		b.edge(paramsFinish, bodyStart)

	default:
		return b.buildOpaque(n)
	}

	b.g.AddSubtree(start, n, recursive)
	return start, finish
}

// chain lowers nodes left to right. An empty list is a single pass-through node.
func (b *builder) chain(nodes []*tree.Node) (start, finish Node) {
	if len(nodes) == 0 {
		start = b.node()
		return start, start
	}
	start, finish = b.build(nodes[0], false, false)
	for _, c := range nodes[1:] {
		s, f := b.build(c, false, false)
		b.edge(finish, s)
		finish = f
	}
	return start, finish
}

func (b *builder) buildCall(n *tree.Node) (start, finish Node) {
	start = b.node()
	finish = start
	callee := n.Callee
	for i, arg := range n.Children {
		weak := callee != nil && !callee.Variadic && callee.IsRefParam(i)
		s, f := b.build(arg, false, weak)
		b.edge(finish, s)
		finish = f
	}
	if callee != nil && callee.Throws {
		b.exceptions.register(finish)
	}
	return start, finish
}

func (b *builder) buildIf(cond, then, els *tree.Node) (start, finish Node) {
	finish = b.node()
	start, condTrue, condFalse := b.buildCond(cond)

	thenStart, thenFinish := b.build(then, false, false)
	b.edge(condTrue, thenStart)
	b.edge(thenFinish, finish)

	if els != nil {
		elseStart, elseFinish := b.build(els, false, false)
		b.edge(condFalse, elseStart)
		b.edge(elseFinish, finish)
	} else {
		b.edge(condFalse, finish)
	}
	return start, finish
}

func (b *builder) buildFor(n *tree.Node) (start, finish Node) {
	b.enterLoop()

	initStart, initFinish := b.build(n.Child(0), false, false)
	condStart, condTrue, condFalse := b.buildCond(n.Child(1))
	postStart, postFinish := b.build(n.Child(2), false, false)

	bodyStart, bodyFinish := b.build(n.Child(3), false, false)
	bodyEnd := b.node()
	b.edge(bodyFinish, bodyEnd)

	b.edge(initFinish, condStart)
	b.edge(condTrue, bodyStart)
	b.edge(bodyEnd, postStart)
	b.edge(postFinish, condStart)

	finish = b.node()
	b.edge(condFalse, finish)

	b.exitLoop(bodyEnd, finish)
	return initStart, finish
}

// buildLoop lowers while and do-while. A do loop is entered through its body.
func (b *builder) buildLoop(cond, body *tree.Node, isDo bool) (start, finish Node) {
	b.enterLoop()

	condStart, condTrue, condFalse := b.buildCond(cond)

	bodyStart, bodyFinish := b.build(body, false, false)
	bodyEnd := b.node()
	b.edge(bodyFinish, bodyEnd)

	b.edge(condTrue, bodyStart)
	b.edge(bodyEnd, condStart)

	finish = b.node()
	b.edge(condFalse, finish)

	start = condStart
	if isDo {
		start = bodyStart
		if bodyFinish.Valid() {
			b.g.AddSubtree(start, cond, true)
		}
	}

	b.exitLoop(bodyEnd, finish)
	return start, finish
}

func (b *builder) buildForeach(n *tree.Node) (start, finish Node) {
	b.enterLoop()

	collection, value, key, body := n.Child(0), n.Child(1), n.Child(2), n.Child(3)

	// Iterating by reference may store into the collection.
	valStart, valFinish := b.build(collection, false, value.Ref)

	writes := b.node()
	for _, target := range []*tree.Node{value, key} {
		tree.Inspect(target, func(x *tree.Node) bool {
			if x.Kind == tree.VarRef {
				b.g.AddUsage(writes, b.usage(Write, x, false))
			}
			return true
		})
		b.g.AddSubtree(valStart, target, true)
	}

	finish = b.node()
	check := b.node()
	b.edge(valFinish, check)
	b.edge(check, writes)
	b.edge(check, finish)

	bodyStart, bodyFinish := b.build(body, false, false)
	bodyEnd := b.node()
	b.edge(bodyFinish, bodyEnd)

	b.edge(writes, bodyStart)
	b.edge(bodyEnd, check)

	b.exitLoop(bodyEnd, finish)
	return valStart, finish
}

func (b *builder) buildSwitch(n *tree.Node) (start, finish Node) {
	b.enterLoop()

	condStart, condFinish := b.build(n.Child(0), false, false)

	varsInit := b.node()
	varsRead := b.node()
	b.edge(varsInit, varsRead)
	vars := n.Child(1)
	b.g.AddSubtree(varsInit, vars, false)
	for _, v := range vars.Children {
		b.g.AddUsage(varsInit, b.usage(Write, v, false))
		b.g.AddUsage(varsRead, b.usage(Read, v, false))
		b.g.AddSubtree(varsInit, v, false)
		b.g.AddSubtree(varsRead, v, false)
	}

	prevFinish := NoNode
	prevLabelFinish := condFinish
	defaultStart := NoNode
	seenDefault := false

	cases := n.Children[2:]
	for _, c := range cases {
		var label, body *tree.Node
		switch c.Kind {
		case tree.Case:
			label, body = c.Child(0), c.Child(1)
		case tree.Default:
			if seenDefault {
				tree.Failf(c.Pos, "switch has more than one default")
			}
			body = c.Child(0)
		default:
			tree.Failf(c.Pos, "unexpected %s inside switch", c.Kind)
		}

		bodyStart, bodyFinish := b.build(body, false, false)
		b.edge(prevFinish, bodyStart)
		prevFinish = bodyFinish

		if c.Kind == tree.Default {
			defaultStart = bodyStart
			seenDefault = true
			continue
		}
		labelStart, labelFinish := b.build(label, false, false)
		b.edge(labelFinish, bodyStart)
		b.edge(prevLabelFinish, labelStart)
		prevLabelFinish = labelFinish
	}

	finish = b.node()
	b.edge(prevFinish, finish)
	if seenDefault {
		b.edge(prevLabelFinish, defaultStart)
	} else {
		b.edge(prevLabelFinish, finish)
	}

	b.edge(varsRead, condStart)

	for _, c := range cases {
		b.g.AddSubtree(condStart, c, false)
	}

	b.exitLoop(finish, finish)
	return varsInit, finish
}

func (b *builder) buildTry(n *tree.Node) (start, finish Node) {
	catches := n.Children[1:]
	if len(catches) == 0 {
		tree.Failf(n.Pos, "try without catch")
	}

	bindStarts := make([]Node, len(catches))
	bindFinishes := make([]Node, len(catches))
	for i, c := range catches {
		if c.Kind != tree.Catch {
			tree.Failf(c.Pos, "unexpected %s inside try", c.Kind)
		}
		bindStarts[i], bindFinishes[i] = b.build(c.Child(0), true, false)
	}

	b.exceptions.push()
	start, bodyFinish := b.build(n.Child(0), false, false)
	for _, from := range b.exceptions.pop() {
		for _, to := range bindStarts {
			b.edge(from, to)
		}
	}

	finish = b.node()
	b.edge(bodyFinish, finish)
	for i, c := range catches {
		catchStart, catchFinish := b.build(c.Child(1), false, false)
		b.edge(bindFinishes[i], catchStart)
		b.edge(catchFinish, finish)

		b.g.AddSubtree(start, c, false)
		b.g.AddSubtree(start, c.Child(0), false)
		b.g.AddSubtree(start, c.Child(1), true)
	}
	return start, finish
}

// buildCond lowers a boolean expression into a start node and the nodes
// reached when it evaluates true and false.
func (b *builder) buildCond(n *tree.Node) (start, onTrue, onFalse Node) {
	switch {
	case n.Kind == tree.Conv && n.Value == "bool":
		start, onTrue, onFalse = b.buildCond(n.Child(0))

	case n.Kind == tree.Not:
		start, onFalse, onTrue = b.buildCond(n.Child(0))

	case n.Kind == tree.And || n.Kind == tree.Or:
		lhsStart, lhsTrue, lhsFalse := b.buildCond(n.Child(0))
		rhsStart, rhsTrue, rhsFalse := b.buildCond(n.Child(1))
		start = lhsStart
		onTrue = b.node()
		onFalse = b.node()
		if n.Kind == tree.And {
			b.edge(lhsTrue, rhsStart)
			b.edge(lhsFalse, onFalse)
		} else {
			b.edge(lhsTrue, onTrue)
			b.edge(lhsFalse, rhsStart)
		}
		b.edge(rhsTrue, onTrue)
		b.edge(rhsFalse, onFalse)

	default:
		var finish Node
		start, finish = b.build(n, false, false)
		onTrue = b.node()
		onFalse = b.node()
		b.edge(finish, onTrue)
		b.edge(finish, onFalse)
	}

	b.g.AddSubtree(start, n, false)
	return start, onTrue, onFalse
}

// buildOpaque lowers a node the graph does not model structurally. All of
// its variable occurrences are attached in bulk, writes before reads, and
// the whole subtree is confirmed by its entry.
func (b *builder) buildOpaque(n *tree.Node) (start, finish Node) {
	start = b.node()
	finish = b.node()
	writes := b.node()
	reads := b.node()

	throws := b.collect(n, writes, reads, false)

	b.g.AddSubtree(start, n, true)

	b.edge(start, writes)
	b.edge(start, reads)
	b.edge(writes, reads)
	b.edge(writes, finish)
	b.edge(reads, finish)

	if throws {
		b.exceptions.register(finish)
	}
	return start, finish
}

func (b *builder) collect(n *tree.Node, writes, reads Node, guarded bool) bool {
	throws := false
	switch n.Kind {
	case tree.Isset, tree.Unset:
		guarded = true
	case tree.Throw:
		throws = true
	case tree.Call:
		if n.Callee != nil && n.Callee.Throws {
			throws = true
		}
	case tree.Assign:
		if lhs := n.Child(0); lhs.Kind == tree.VarRef {
			b.g.AddUsage(writes, b.usage(Write, lhs, false))
			return b.collect(n.Child(1), writes, reads, guarded) || throws
		}
	case tree.VarRef:
		if u := b.usage(Read, n, false); u != nil {
			u.Guarded = guarded
			b.g.AddUsage(reads, u)
		}
	}
	for _, c := range n.Children {
		if b.collect(c, writes, reads, guarded) {
			throws = true
		}
	}
	return throws
}
