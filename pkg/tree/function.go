package tree

// Function is one analysis unit: its tree plus its variable table.
type Function struct {
	Name   string
	Root   *Node // Kind Func: params, body
	Params []*Var
	Locals []*Var
	Pos    Pos
	// Dynamic is set when the body can reach variables by name at run
	// time ($$x, extract, compact, eval), so no variable may be renamed.
	Dynamic bool
}

// NewFunction assembles a function from its parameter vars, their defaults
// (nil where absent) and its body. Params must be ordered.
func NewFunction(name string, params []*Var, body *Node) *Function {
	list := New(Params)
	for i, v := range params {
		v.Kind = Param
		v.ParamIndex = i
		p := New(ParamDecl, NewVarRef(v))
		if v.Default != nil {
			p.Children = append(p.Children, v.Default)
		}
		list.Children = append(list.Children, p)
	}
	return &Function{
		Name:   name,
		Root:   New(Func, list, body),
		Params: params,
	}
}

// ParamList returns the Params node.
func (f *Function) ParamList() *Node {
	return f.Root.Child(0)
}

// Body returns the function body.
func (f *Function) Body() *Node {
	return f.Root.Child(1)
}

// BodySlot returns the address of the body so it can be replaced.
func (f *Function) BodySlot() **Node {
	return &f.Root.Children[1]
}

// ParamBinding returns the variable occurrence that binds the i-th parameter.
func (f *Function) ParamBinding(i int) *Node {
	return f.ParamList().Child(i).Child(0)
}

// AddLocal appends v to the local table.
func (f *Function) AddLocal(v *Var) {
	v.Kind = Local
	v.ParamIndex = -1
	f.Locals = append(f.Locals, v)
}

// RemoveLocal drops v from the local table and reports whether it was there.
func (f *Function) RemoveLocal(v *Var) bool {
	for i, l := range f.Locals {
		if l == v {
			f.Locals = append(f.Locals[:i], f.Locals[i+1:]...)
			return true
		}
	}
	return false
}

// SetParam installs v as the i-th parameter.
func (f *Function) SetParam(i int, v *Var, def *Node) {
	v.Kind = Param
	v.ParamIndex = i
	v.Default = def
	f.Params[i] = v
}

// Vars returns parameters followed by locals.
func (f *Function) Vars() []*Var {
	out := make([]*Var, 0, len(f.Params)+len(f.Locals))
	out = append(out, f.Params...)
	return append(out, f.Locals...)
}

// Lookup finds a variable by name in the function's tables.
func (f *Function) Lookup(name string) *Var {
	for _, v := range f.Vars() {
		if v.Name == name {
			return v
		}
	}
	return nil
}
