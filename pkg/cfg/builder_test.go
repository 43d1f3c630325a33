package cfg

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// recorder tracks every variable it is asked about.
type recorder struct {
	usages []*Usage
}

func (r *recorder) NewUsage(typ UsageType, ref *tree.Node) *Usage {
	u := &Usage{ID: len(r.usages), Part: -1, Type: typ, Ref: ref, Node: NoNode}
	r.usages = append(r.usages, u)
	return u
}

func (r *recorder) count(typ UsageType) int {
	c := 0
	for _, u := range r.usages {
		if u.Type == typ {
			c++
		}
	}
	return c
}

var testVars = tree.NewRegistry()

func local(name string) *tree.Var {
	return testVars.NewVar(name, tree.Local)
}

func fn(stmts ...*tree.Node) *tree.Function {
	return tree.NewFunction("f", nil, tree.New(tree.Seq, stmts...))
}

func ref(v *tree.Var) *tree.Node { return tree.NewVarRef(v) }

func assign(v *tree.Var, rhs *tree.Node) *tree.Node {
	return tree.New(tree.Assign, ref(v), rhs)
}

func one() *tree.Node { return tree.NewLit(tree.Int, "1") }

func jump(kind tree.Kind, depth int) *tree.Node {
	n := tree.New(kind)
	n.Depth = depth
	return n
}

// entered reports whether the control point that enters n is reachable.
func entered(g *Graph, marks *Marks, n *tree.Node) bool {
	for i := 0; i < g.Len(); i++ {
		for _, st := range g.Subtrees(Node(i)) {
			if st.Root == n && marks.Reached(Node(i)) {
				return true
			}
		}
	}
	return false
}

// internalError runs f and returns the *tree.InternalError it panics with.
func internalError(t *testing.T, f func()) (ie *tree.InternalError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ok bool
		ie, ok = r.(*tree.InternalError)
		require.True(t, ok, "expected *tree.InternalError, got %T", r)
	}()
	f()
	return nil
}

func TestBuildLinear(t *testing.T) {
	x := local("x")
	f := fn(assign(x, one()), tree.New(tree.Echo, ref(x)))

	rec := &recorder{}
	g := Build(f, rec)
	marks := g.Mark()

	assert.True(t, g.Start.Valid())
	assert.True(t, g.Finish.Valid())
	assert.Equal(t, g.Len(), marks.ReachedCount())
	assert.Equal(t, 1, rec.count(Write))
	assert.Equal(t, 1, rec.count(Read))
	for _, u := range rec.usages {
		assert.True(t, u.Node.Valid(), "usage %s was never attached", u)
	}

	// The write is observable before the read.
	w, r := rec.usages[0], rec.usages[1]
	require.Equal(t, Write, w.Type)
	assert.Less(t, int(w.Node), int(r.Node))
}

func TestBuildNilRegistry(t *testing.T) {
	x := local("x")
	g := Build(fn(assign(x, one())), nil)
	for i := 0; i < g.Len(); i++ {
		assert.Empty(t, g.Usages(Node(i)))
	}
}

func TestReturnEndsFlow(t *testing.T) {
	x := local("x")
	dead := assign(x, one())
	f := fn(tree.New(tree.Return, one()), dead)

	g := Build(f, nil)
	marks := g.Mark()

	assert.False(t, marks.Used(dead))
	assert.Less(t, marks.ReachedCount(), g.Len())

	removed := Sweep(f, marks)
	require.Len(t, removed, 1)
	assert.Same(t, dead, removed[0])
	assert.Equal(t, tree.Empty, f.Body().Child(1).Kind)
	assert.Equal(t, tree.Return, f.Body().Child(0).Kind)
}

func TestBreakSkipsRestOfLoop(t *testing.T) {
	c := local("c")
	y := local("y")
	dead := assign(y, one())
	loop := tree.New(tree.While, ref(c), tree.New(tree.Seq, jump(tree.Break, 1), dead))
	after := tree.New(tree.Echo, ref(c))
	f := fn(loop, after)

	g := Build(f, nil)
	marks := g.Mark()
	assert.False(t, marks.Used(dead))
	assert.True(t, marks.Used(after))

	removed := Sweep(f, marks)
	assert.Equal(t, []*tree.Node{dead}, removed)
}

func TestContinueTargetsEnclosingLoop(t *testing.T) {
	c := local("c")
	y := local("y")
	dead := assign(y, one())
	inner := tree.New(tree.While, ref(c), tree.New(tree.Seq, jump(tree.Continue, 2), dead))
	outer := tree.New(tree.While, ref(c), tree.New(tree.Seq, inner))

	g := Build(fn(outer), nil)
	marks := g.Mark()
	assert.False(t, marks.Used(dead))
	assert.True(t, marks.Used(inner))
}

func TestJumpOutsideLoop(t *testing.T) {
	ie := internalError(t, func() { Build(fn(jump(tree.Break, 1)), nil) })
	assert.Contains(t, ie.Msg, "break 1 with 0 enclosing constructs")

	c := local("c")
	loop := tree.New(tree.While, ref(c), tree.New(tree.Seq, jump(tree.Continue, 2)))
	ie = internalError(t, func() { Build(fn(loop), nil) })
	assert.Contains(t, ie.Msg, "continue 2 with 1 enclosing constructs")
}

func TestSwitchFallthroughAndDefault(t *testing.T) {
	c := local("c")
	x := local("x")
	caseA := tree.New(tree.Case, one(), tree.New(tree.Seq, assign(x, one())))
	caseB := tree.New(tree.Case, tree.NewLit(tree.Int, "2"), tree.New(tree.Seq, jump(tree.Break, 1)))
	def := tree.New(tree.Default, tree.New(tree.Seq, tree.New(tree.Echo, ref(x))))
	sw := tree.New(tree.Switch, ref(c), tree.New(tree.Seq), caseA, caseB, def)

	f := fn(sw)
	marks := Build(f, nil).Mark()
	for _, n := range []*tree.Node{caseA, caseB, def} {
		assert.True(t, marks.Used(n), "%s should be reachable", n)
	}
	assert.Empty(t, Sweep(f, marks))
}

func TestSwitchRejectsSecondDefault(t *testing.T) {
	c := local("c")
	sw := tree.New(tree.Switch, ref(c), tree.New(tree.Seq),
		tree.New(tree.Default, tree.New(tree.Seq)),
		tree.New(tree.Default, tree.New(tree.Seq)))

	ie := internalError(t, func() { Build(fn(sw), nil) })
	assert.Contains(t, ie.Msg, "more than one default")
}

func TestTryRequiresCatch(t *testing.T) {
	try := tree.New(tree.Try, tree.New(tree.Seq))
	ie := internalError(t, func() { Build(fn(try), nil) })
	assert.Equal(t, "try without catch", ie.Msg)
}

func TestThrowReachesCatch(t *testing.T) {
	e := local("e")
	a := local("a")
	b := local("b")
	afterThrow := assign(a, one())
	handler := assign(b, one())
	try := tree.New(tree.Try,
		tree.New(tree.Seq, tree.New(tree.Throw, ref(e)), afterThrow),
		tree.New(tree.Catch, ref(e), tree.New(tree.Seq, handler)))

	rec := &recorder{}
	g := Build(fn(try), rec)
	marks := g.Mark()

	assert.False(t, marks.Used(afterThrow))
	assert.True(t, entered(g, marks, handler))
}

func TestCatchUnreachedWithoutThrow(t *testing.T) {
	a := local("a")
	e := local("e")
	handler := assign(a, one())
	try := tree.New(tree.Try,
		tree.New(tree.Seq, tree.New(tree.Echo, one())),
		tree.New(tree.Catch, ref(e), tree.New(tree.Seq, handler)))

	g := Build(fn(try), nil)
	marks := g.Mark()

	// The clause is kept, its body is not reached.
	assert.True(t, marks.Used(try.Child(1)))
	assert.True(t, marks.Used(handler))
	assert.False(t, entered(g, marks, handler))
}

func TestThrowingCallReachesCatch(t *testing.T) {
	e := local("e")
	b := local("b")
	handler := assign(b, one())
	call := tree.NewCall(&tree.Callee{Name: "fail", Throws: true})
	try := tree.New(tree.Try,
		tree.New(tree.Seq, call),
		tree.New(tree.Catch, ref(e), tree.New(tree.Seq, handler)))

	g := Build(fn(try), nil)
	assert.True(t, entered(g, g.Mark(), handler))

	quiet := tree.NewCall(&tree.Callee{Name: "strlen"})
	handler2 := assign(b, one())
	try2 := tree.New(tree.Try,
		tree.New(tree.Seq, quiet),
		tree.New(tree.Catch, ref(e), tree.New(tree.Seq, handler2)))
	g = Build(fn(try2), nil)
	assert.False(t, entered(g, g.Mark(), handler2))
}

func TestRefArgumentIsWeakWrite(t *testing.T) {
	arr := local("arr")
	call := tree.NewCall(&tree.Callee{Name: "sort", RefParams: []int{0}}, ref(arr))

	rec := &recorder{}
	Build(fn(call), rec)

	require.Len(t, rec.usages, 1)
	assert.Equal(t, Read, rec.usages[0].Type)
	assert.True(t, rec.usages[0].WeakWrite)
	assert.True(t, rec.usages[0].Writes())
}

func TestForeachWritesValueAndKey(t *testing.T) {
	items := local("items")
	v := local("v")
	k := local("k")
	loop := tree.New(tree.Foreach, ref(items), ref(v), ref(k), tree.New(tree.Seq, tree.New(tree.Echo, ref(v))))

	rec := &recorder{}
	g := Build(fn(loop), rec)

	var writes []*Usage
	for _, u := range rec.usages {
		if u.Type == Write {
			writes = append(writes, u)
		}
	}
	require.Len(t, writes, 2)
	assert.Equal(t, writes[0].Node, writes[1].Node, "value and key are bound together")
	assert.Equal(t, g.Len(), g.Mark().ReachedCount())
}

func TestMixedUsagesOnOneNode(t *testing.T) {
	x := local("x")
	g := newGraph()
	n := g.NewNode()
	g.AddUsage(n, &Usage{Type: Read, Ref: ref(x)})
	ie := internalError(t, func() { g.AddUsage(n, &Usage{Type: Write, Ref: ref(x)}) })
	assert.Contains(t, ie.Msg, "mixes read and write")
}

func TestSweepKeepsRecursiveConfirmation(t *testing.T) {
	x := local("x")
	// Opaque statements confirm their whole subtree.
	stmt := tree.New(tree.Echo, tree.New(tree.Binary, ref(x), one()))
	stmt.Children[0].Value = "."
	f := fn(stmt)

	marks := Build(f, nil).Mark()
	tree.Inspect(stmt, func(n *tree.Node) bool {
		assert.True(t, marks.Used(n), "%s", n)
		return true
	})
	assert.Empty(t, Sweep(f, marks))
}

func TestGraphExport(t *testing.T) {
	c := local("c")
	x := local("x")
	loop := tree.New(tree.While, ref(c), tree.New(tree.Seq, assign(x, one())))
	f := fn(loop)

	rec := &recorder{}
	g := Build(f, rec)
	marks := g.Mark()

	info := g.Info("f", marks)
	assert.Equal(t, "f", info.FunctionName)
	assert.Len(t, info.Nodes, g.Len())
	assert.Len(t, info.Edges, g.EdgeCount())
	assert.Equal(t, int(g.Start), info.EntryNodeID)
	assert.GreaterOrEqual(t, info.CyclomaticComplexity, 2)

	hasBack := false
	for _, e := range info.Edges {
		if e.EdgeType == EdgeTypeBackEdge {
			hasBack = true
		}
	}
	assert.True(t, hasBack, "a loop must produce a back edge")

	_, err := json.Marshal(info)
	require.NoError(t, err)

	var dump bytes.Buffer
	require.NoError(t, g.Dump(&dump, marks))
	assert.Contains(t, dump.String(), "[start]")
	assert.Contains(t, dump.String(), "write $x")

	var dot bytes.Buffer
	require.NoError(t, g.WriteDOT(&dot, "f", marks))
	assert.Contains(t, dot.String(), `digraph "f"`)
	assert.Contains(t, dot.String(), "->")
}

// usageNode returns the control point carrying the first usage of v.
func usageNode(t *testing.T, rec *recorder, v *tree.Var) Node {
	t.Helper()
	for _, u := range rec.usages {
		if u.Ref.Var == v {
			return u.Node
		}
	}
	t.Fatalf("no usage of %s", v.Name)
	return NoNode
}

// reaches reports whether to is reachable from from without passing avoid.
func reaches(g *Graph, from, to, avoid Node) bool {
	seen := map[Node]bool{from: true}
	work := []Node{from}
	for len(work) > 0 {
		n := work[0]
		work = work[1:]
		if n == to {
			return true
		}
		for _, m := range g.Next(n) {
			if m != avoid && !seen[m] {
				seen[m] = true
				work = append(work, m)
			}
		}
	}
	return false
}

func TestConditionRouting(t *testing.T) {
	a := local("a")
	b := local("b")
	th := local("th")
	el := local("el")

	// thenShort and elseShort tell whether each branch is reachable from $a
	// without evaluating $b.
	tests := []struct {
		name                 string
		cond                 func() *tree.Node
		thenShort, elseShort bool
	}{
		{"and", func() *tree.Node { return tree.New(tree.And, ref(a), ref(b)) }, false, true},
		{"or", func() *tree.Node { return tree.New(tree.Or, ref(a), ref(b)) }, true, false},
		{"not and", func() *tree.Node {
			return tree.New(tree.Not, tree.New(tree.And, ref(a), ref(b)))
		}, true, false},
		{"not or", func() *tree.Node {
			return tree.New(tree.Not, tree.New(tree.Or, ref(a), ref(b)))
		}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := tree.New(tree.If, tt.cond(),
				tree.New(tree.Seq, tree.New(tree.Echo, ref(th))),
				tree.New(tree.Seq, tree.New(tree.Echo, ref(el))))
			rec := &recorder{}
			g := Build(fn(stmt), rec)

			an, bn := usageNode(t, rec, a), usageNode(t, rec, b)
			tn, en := usageNode(t, rec, th), usageNode(t, rec, el)
			assert.Equal(t, g.Start, an, "the left operand is evaluated first")
			assert.True(t, reaches(g, an, bn, NoNode))
			assert.Equal(t, tt.thenShort, reaches(g, an, tn, bn), "then branch")
			assert.Equal(t, tt.elseShort, reaches(g, an, en, bn), "else branch")
			assert.True(t, reaches(g, bn, tn, NoNode))
			assert.True(t, reaches(g, bn, en, NoNode))
		})
	}
}

func TestListBindsTargetsLastFirst(t *testing.T) {
	src := local("src")
	p := local("p")
	q := local("q")
	list := tree.New(tree.List, ref(src), ref(p), ref(q))

	rec := &recorder{}
	g := Build(fn(list), rec)

	require.Len(t, rec.usages, 3)
	assert.Equal(t, src, rec.usages[0].Ref.Var)
	assert.Equal(t, q, rec.usages[1].Ref.Var)
	assert.Equal(t, p, rec.usages[2].Ref.Var)

	sn, pn, qn := usageNode(t, rec, src), usageNode(t, rec, p), usageNode(t, rec, q)
	assert.Equal(t, []Node{qn}, g.Next(sn))
	assert.Equal(t, []Node{pn}, g.Next(qn))
	assert.False(t, reaches(g, pn, qn, NoNode))
}

func TestDoLoopEntersThroughBody(t *testing.T) {
	c := local("c")
	x := local("x")
	y := local("y")
	body := tree.New(tree.Seq, assign(x, ref(y)))
	loop := tree.New(tree.Do, body, ref(c))

	rec := &recorder{}
	g := Build(fn(loop), rec)
	marks := g.Mark()

	yn, cn := usageNode(t, rec, y), usageNode(t, rec, c)
	assert.Equal(t, g.Start, yn, "the body runs before the condition")
	assert.True(t, reaches(g, yn, cn, NoNode))
	assert.True(t, reaches(g, cn, yn, NoNode), "the condition loops back to the body")
	assert.True(t, marks.Used(loop.Child(1)))

	// A while loop is entered through its condition instead.
	rec = &recorder{}
	g = Build(fn(tree.New(tree.While, ref(c), tree.New(tree.Seq, assign(x, ref(y))))), rec)
	assert.Equal(t, g.Start, usageNode(t, rec, c))
}

func TestCompareWithNullIsChained(t *testing.T) {
	x := local("x")
	y := local("y")

	eq := tree.New(tree.Eq, ref(x), tree.NewLit(tree.Null, ""))
	rec := &recorder{}
	g := Build(fn(assign(y, eq)), rec)

	xn, yn := usageNode(t, rec, x), usageNode(t, rec, y)
	assert.Equal(t, g.Start, xn)
	next := g.Next(xn)
	require.Len(t, next, 1)
	assert.Empty(t, g.Usages(next[0]), "the literal has its own control point")
	assert.Equal(t, []Node{yn}, g.Next(next[0]))

	// Any other comparison is lowered as one opaque expression.
	cmp := tree.New(tree.Neq, ref(x), one())
	rec = &recorder{}
	g = Build(fn(assign(y, cmp)), rec)
	assert.Empty(t, g.Usages(g.Start))
	assert.NotEqual(t, g.Start, usageNode(t, rec, x))
}

func TestIndexedWriteWeaklyWritesBase(t *testing.T) {
	arr := local("arr")
	k := local("k")
	y := local("y")

	store := assign(arr, one())
	store.Children[0] = tree.New(tree.Index, ref(arr), ref(k))
	rec := &recorder{}
	g := Build(fn(store), rec)

	require.Len(t, rec.usages, 2)
	base, key := rec.usages[0], rec.usages[1]
	require.Equal(t, arr, base.Ref.Var)
	require.Equal(t, k, key.Ref.Var)
	assert.Equal(t, Read, base.Type)
	assert.True(t, base.WeakWrite)
	assert.False(t, key.WeakWrite)
	assert.Equal(t, []Node{base.Node}, g.Next(key.Node), "the key is evaluated before the base")

	// Reading through an index leaves the base a plain read.
	rec = &recorder{}
	Build(fn(assign(y, tree.New(tree.Index, ref(arr), ref(k)))), rec)
	for _, u := range rec.usages {
		if u.Ref.Var == arr {
			assert.False(t, u.WeakWrite)
		}
	}
}
