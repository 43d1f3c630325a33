package tinf

import (
	"strings"

	"github.com/l3aro/go-flowsplit/pkg/tree"
)

const (
	maxRounds     = 16
	maxArrayDepth = 4
)

// Builtin result types for calls the inference knows about.
var builtinResults = map[string]Type{
	"count":        TypeInt,
	"strlen":       TypeInt,
	"intval":       TypeInt,
	"strpos":       TypeMixed,
	"floatval":     TypeFloat,
	"microtime":    TypeMixed,
	"strval":       TypeString,
	"implode":      TypeString,
	"substr":       TypeString,
	"sprintf":      TypeString,
	"str_repeat":   TypeString,
	"strtolower":   TypeString,
	"strtoupper":   TypeString,
	"trim":         TypeString,
	"json_encode":  TypeString,
	"is_int":       TypeBool,
	"is_string":    TypeBool,
	"is_array":     TypeBool,
	"in_array":     TypeBool,
	"array_keys":   Type{Kind: Array},
	"array_values": Type{Kind: Array},
	"explode":      ArrayOf(TypeString),
}

// Oracle maps variables to their inferred types.
type Oracle struct {
	types map[*tree.Var]Type
}

// NewOracle creates an empty oracle.
func NewOracle() *Oracle {
	return &Oracle{types: make(map[*tree.Var]Type)}
}

// TypeOf returns v's type, Unknown when nothing was inferred.
func (o *Oracle) TypeOf(v *tree.Var) Type {
	return o.types[v]
}

// SetType records v's type.
func (o *Oracle) SetType(v *tree.Var, t Type) {
	o.types[v] = t
}

// Infer assigns each variable of fn the join of every value stored into it.
// Parameters without a default start as mixed. Variables whose type still
// grows after a bounded number of rounds become mixed.
func Infer(fn *tree.Function) *Oracle {
	o := NewOracle()
	for _, p := range fn.Params {
		if p.Default != nil {
			o.types[p] = o.exprType(p.Default)
		} else {
			o.types[p] = TypeMixed
		}
	}

	for round := 0; ; round++ {
		changed := make(map[*tree.Var]bool)
		o.visit(fn.Body(), changed)
		if len(changed) == 0 {
			break
		}
		if round == maxRounds {
			for v := range changed {
				o.types[v] = TypeMixed
			}
			break
		}
	}
	return o
}

func (o *Oracle) widen(v *tree.Var, t Type, changed map[*tree.Var]bool) {
	if v == nil {
		return
	}
	old := o.types[v]
	next := Join(old, t)
	if next.Depth() > maxArrayDepth {
		next = TypeMixed
	}
	if !next.Equal(old) {
		o.types[v] = next
		changed[v] = true
	}
}

func (o *Oracle) visit(n *tree.Node, changed map[*tree.Var]bool) {
	tree.Inspect(n, func(x *tree.Node) bool {
		switch x.Kind {
		case tree.Assign:
			o.store(x.Child(0), o.exprType(x.Child(1)), changed)
		case tree.AssignOp:
			if lhs := x.Child(0); lhs.Kind == tree.VarRef {
				cur := o.exprType(lhs)
				o.widen(lhs.Var, binaryType(strings.TrimSuffix(x.Value, "="), cur, o.exprType(x.Child(1))), changed)
			}
		case tree.List:
			elem := elemType(o.exprType(x.Child(0)))
			for _, target := range x.Children[1:] {
				o.store(target, elem, changed)
			}
		case tree.Foreach:
			elem := elemType(o.exprType(x.Child(0)))
			o.store(x.Child(1), elem, changed)
			o.store(x.Child(2), TypeMixed, changed)
		case tree.Catch:
			o.store(x.Child(0), TypeMixed, changed)
		case tree.Call:
			// By-reference arguments may receive anything.
			for i, arg := range x.Children {
				if x.Callee.IsRefParam(i) && arg.Kind == tree.VarRef {
					o.widen(arg.Var, TypeMixed, changed)
				}
			}
		}
		return true
	})
}

// store records that a value of type t is written through target.
func (o *Oracle) store(target *tree.Node, t Type, changed map[*tree.Var]bool) {
	switch target.Kind {
	case tree.VarRef:
		o.widen(target.Var, t, changed)
	case tree.Index:
		o.store(target.Child(0), ArrayOf(t), changed)
	case tree.List:
		elem := elemType(t)
		for _, c := range target.Children[1:] {
			o.store(c, elem, changed)
		}
	}
}

func elemType(t Type) Type {
	if t.Kind == Array && t.Elem != nil {
		return *t.Elem
	}
	return TypeMixed
}

// TypeOfExpr returns the type of an expression under the current bindings.
func (o *Oracle) TypeOfExpr(n *tree.Node) Type {
	return o.exprType(n)
}

func (o *Oracle) exprType(n *tree.Node) Type {
	if n == nil {
		return TypeUnknown
	}
	switch n.Kind {
	case tree.Int:
		return TypeInt
	case tree.Float:
		return TypeFloat
	case tree.String:
		return TypeString
	case tree.True, tree.False, tree.Eq, tree.Neq, tree.And, tree.Or, tree.Not, tree.Isset:
		return TypeBool
	case tree.Null:
		return TypeNull
	case tree.VarRef:
		return o.types[n.Var]
	case tree.Array:
		t := Type{Kind: Array}
		for _, item := range n.Children {
			v := item
			if item.Kind == tree.Pair {
				v = item.Child(1)
			}
			t = Join(t, ArrayOf(o.exprType(v)))
		}
		return t
	case tree.Assign:
		return o.exprType(n.Child(1))
	case tree.Ternary:
		return Join(o.exprType(n.Child(1)), o.exprType(n.Child(2)))
	case tree.Index:
		return elemType(o.exprType(n.Child(0)))
	case tree.Binary:
		return binaryType(n.Value, o.exprType(n.Child(0)), o.exprType(n.Child(1)))
	case tree.Unary:
		switch n.Value {
		case "-", "+":
			return arith(o.exprType(n.Child(0)), TypeInt)
		case "~":
			return TypeInt
		case "!":
			return TypeBool
		}
		return TypeMixed
	case tree.Conv:
		return convType(n.Value)
	case tree.Call:
		if n.Callee != nil {
			if t, ok := builtinResults[strings.ToLower(n.Callee.Name)]; ok {
				return t
			}
		}
		return TypeMixed
	}
	return TypeMixed
}

func binaryType(op string, l, r Type) Type {
	switch op {
	case ".":
		return TypeString
	case "+", "-", "*", "%", "**":
		return arith(l, r)
	case "/":
		return TypeFloat
	case "&", "|", "^", "<<", ">>":
		return TypeInt
	case "<", ">", "<=", ">=", "<=>", "instanceof", "xor", "and", "or":
		if op == "<=>" {
			return TypeInt
		}
		return TypeBool
	case "??":
		l.Nullable = false
		if l.Kind == Null {
			return r
		}
		return Join(l, r)
	}
	return TypeMixed
}

func arith(l, r Type) Type {
	switch {
	case l.Kind == Unknown || r.Kind == Unknown:
		return Join(l, r)
	case l.Kind == Int && r.Kind == Int && !l.Nullable && !r.Nullable:
		return TypeInt
	case (l.Kind == Int || l.Kind == Float) && (r.Kind == Int || r.Kind == Float):
		return TypeFloat
	}
	return TypeMixed
}

func convType(target string) Type {
	switch strings.ToLower(target) {
	case "int", "integer":
		return TypeInt
	case "float", "double", "real":
		return TypeFloat
	case "string":
		return TypeString
	case "bool", "boolean":
		return TypeBool
	case "array":
		return Type{Kind: Array}
	}
	return TypeMixed
}
