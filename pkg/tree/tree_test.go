package tree

import (
	"sync"
	"testing"
)

func TestNodeString(t *testing.T) {
	reg := NewRegistry()
	x := reg.NewVar("x", Local)

	byRef := NewVarRef(x)
	byRef.Ref = true
	brk := New(Break)
	brk.Depth = 2
	op := New(AssignOp, NewVarRef(x), NewLit(Int, "1"))
	op.Value = "+="

	tests := []struct {
		node *Node
		want string
	}{
		{NewVarRef(x), "$x"},
		{byRef, "&$x"},
		{NewLit(String, "a\"b"), `"a\"b"`},
		{NewLit(Null, ""), "null"},
		{New(Seq), "(seq)"},
		{brk, "(break 2)"},
		{op, "(assign_op += $x 1)"},
		{NewCall(&Callee{Name: "strlen"}, NewVarRef(x)), "(call strlen $x)"},
		{New(If, NewVarRef(x), New(Seq, New(Return, NewLit(Int, "1")))), "(if $x (seq (return 1)))"},
		{nil, "nil"},
	}

	for _, tt := range tests {
		if got := tt.node.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if Foreach.String() != "foreach" || AssignOp.String() != "assign_op" {
		t.Errorf("unexpected kind names %s %s", Foreach, AssignOp)
	}
	if got := Kind(200).String(); got != "kind(200)" {
		t.Errorf("Kind(200).String() = %s", got)
	}
	if !Const.IsLiteral() || VarRef.IsLiteral() || !Int.IsLiteral() {
		t.Error("IsLiteral misclassifies kinds")
	}
	if Superlocal.String() != "superlocal" || VarKind(99).String() != "varkind(99)" {
		t.Error("unexpected var kind names")
	}
}

func TestCalleeIsRefParam(t *testing.T) {
	c := &Callee{Name: "preg_match", RefParams: []int{2}}
	if !c.IsRefParam(2) || c.IsRefParam(0) {
		t.Error("IsRefParam mismatch")
	}
	var none *Callee
	if none.IsRefParam(0) {
		t.Error("nil callee has no by-reference params")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	reg := NewRegistry()
	const workers, per = 8, 500

	ids := make(chan int64, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				ids <- reg.NewVar("v", Local).ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if reg.Allocated() != workers*per {
		t.Errorf("Allocated() = %d, want %d", reg.Allocated(), workers*per)
	}
}

func TestFunctionTables(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewVar("a", Local)
	b := reg.NewVar("b", Local)
	b.Default = NewLit(Int, "3")

	fn := NewFunction("f", []*Var{a, b}, New(Seq))
	if a.Kind != Param || b.ParamIndex != 1 {
		t.Fatalf("params not classified: %v %v", a.Kind, b.ParamIndex)
	}
	if fn.ParamBinding(1).Var != b || len(fn.ParamList().Child(1).Children) != 2 {
		t.Fatal("parameter binding or default missing")
	}

	l := reg.NewVar("l", Param)
	fn.AddLocal(l)
	if l.Kind != Local || l.ParamIndex != -1 {
		t.Errorf("AddLocal did not reset the variable: %v %d", l.Kind, l.ParamIndex)
	}
	if fn.Lookup("l") != l || fn.Lookup("zz") != nil {
		t.Error("Lookup mismatch")
	}
	if got := len(fn.Vars()); got != 3 {
		t.Errorf("len(Vars()) = %d, want 3", got)
	}
	if !fn.RemoveLocal(l) || fn.RemoveLocal(l) {
		t.Error("RemoveLocal should succeed once")
	}

	nb := reg.NewVar("b2", Local)
	fn.SetParam(1, nb, b.Default)
	if fn.Params[1] != nb || nb.Kind != Param || nb.ParamIndex != 1 || nb.Default != b.Default {
		t.Errorf("SetParam did not install %v", nb)
	}
}

func TestWalk(t *testing.T) {
	reg := NewRegistry()
	x := reg.NewVar("x", Local)
	y := reg.NewVar("y", Local)
	aliased := NewVarRef(y)
	aliased.Ref = true
	root := New(Seq,
		New(Assign, NewVarRef(x), NewLit(Int, "1")),
		New(Assign, aliased, NewVarRef(x)),
		New(Echo, NewVarRef(x)))

	if got := Count(root); got != 9 {
		t.Errorf("Count() = %d, want 9", got)
	}
	if got := len(Occurrences(root, x)); got != 3 {
		t.Errorf("Occurrences(x) = %d, want 3", got)
	}
	refs := RefVars(root)
	if !refs[y] || refs[x] {
		t.Errorf("RefVars() = %v", refs)
	}

	// Replace the echo; the replacement's children are not visited.
	Rewrite(&root, func(slot **Node) bool {
		if (*slot).Kind == Echo {
			*slot = New(Empty, NewVarRef(x))
			return false
		}
		return true
	})
	if root.Child(2).Kind != Empty {
		t.Errorf("Rewrite did not replace the echo: %s", root)
	}

	visited := 0
	Inspect(root, func(n *Node) bool {
		visited++
		return n.Kind != Assign
	})
	if visited != 5 {
		t.Errorf("Inspect visited %d nodes, want 5", visited)
	}
}

func TestInternalError(t *testing.T) {
	defer func() {
		r := recover()
		ie, ok := r.(*InternalError)
		if !ok {
			t.Fatalf("recovered %T, want *InternalError", r)
		}
		if ie.Error() != "internal error at 3:4: bad 7" {
			t.Errorf("Error() = %q", ie.Error())
		}
		ie.Func = "f"
		if ie.Error() != "internal error in f at 3:4: bad 7" {
			t.Errorf("Error() = %q", ie.Error())
		}
	}()

	Assert(true, Pos{}, "never")
	Assert(false, Pos{Line: 3, Column: 4}, "bad %d", 7)
	t.Fatal("Assert(false) must panic")
}
