// Package tree defines the statement/expression tree a function body is
// lowered to before flow analysis, together with the variable and function
// tables the analysis rewrites.
package tree

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Node.
type Kind uint8

const (
	Empty Kind = iota // no-op statement

	// Sequencing containers.
	Seq   // statement list
	Comma // comma expression, for-init/for-post lists
	Array // array literal
	Pair  // key => value inside an array literal

	// Literals.
	Int
	Float
	String
	True
	False
	Null
	Const

	// Expressions.
	VarRef   // variable occurrence
	Assign   // lhs, rhs
	AssignOp // lhs, rhs; Value holds the operator
	List     // source, targets...
	Index    // array[, key]
	Call     // args...
	Ternary  // cond, then, else
	And      // lhs, rhs
	Or       // lhs, rhs
	Not      // x
	Eq       // lhs, rhs; Value holds == or ===
	Neq      // lhs, rhs; Value holds != or !==
	Conv     // x; Value holds the target type
	Binary   // lhs, rhs; Value holds the operator
	Unary    // x; Value holds the operator
	Isset    // vars...
	Closure  // captured vars...
	Other    // anything the front end does not model

	// Statements.
	Return   // [expr]
	Echo     // exprs...
	Unset    // vars...
	If       // cond, then[, else]
	For      // init, cond, post, body
	While    // cond, body
	Do       // body, cond
	Foreach  // collection, value, key-or-Empty, body
	Switch   // cond, vars, cases...
	Case     // expr, body
	Default  // body
	Break    // Depth
	Continue // Depth
	Throw    // expr
	Try      // body, catches...
	Catch    // binding, body

	// Function structure.
	Func      // params, body
	Params    // ParamDecl...
	ParamDecl // var[, default]
)

var kindNames = [...]string{
	Empty: "empty", Seq: "seq", Comma: "comma", Array: "array", Pair: "pair",
	Int: "int", Float: "float", String: "string", True: "true", False: "false", Null: "null", Const: "const",
	VarRef: "var", Assign: "assign", AssignOp: "assign_op", List: "list", Index: "index", Call: "call",
	Ternary: "ternary", And: "and", Or: "or", Not: "not", Eq: "eq", Neq: "neq", Conv: "conv",
	Binary: "binary", Unary: "unary", Isset: "isset", Closure: "closure", Other: "other",
	Return: "return", Echo: "echo", Unset: "unset", If: "if", For: "for", While: "while", Do: "do",
	Foreach: "foreach", Switch: "switch", Case: "case", Default: "default", Break: "break",
	Continue: "continue", Throw: "throw", Try: "try", Catch: "catch",
	Func: "function", Params: "params", ParamDecl: "param",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsLiteral reports whether k is a constant value with no children.
func (k Kind) IsLiteral() bool {
	return k >= Int && k <= Const
}

// Pos is a 1-based source position.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Callee describes the resolved target of a Call.
type Callee struct {
	Name      string
	RefParams []int
	Variadic  bool
	Throws    bool
}

// IsRefParam reports whether the i-th formal parameter is taken by reference.
func (c *Callee) IsRefParam(i int) bool {
	if c == nil {
		return false
	}
	for _, p := range c.RefParams {
		if p == i {
			return true
		}
	}
	return false
}

// Node is one statement or expression.
type Node struct {
	Kind     Kind
	Children []*Node
	Var      *Var
	Value    string
	Callee   *Callee
	Ref      bool
	Depth    int
	Pos      Pos
}

// New creates a node of the given kind.
func New(kind Kind, children ...*Node) *Node {
	return &Node{Kind: kind, Children: children}
}

// NewVarRef creates an occurrence of v.
func NewVarRef(v *Var) *Node {
	return &Node{Kind: VarRef, Var: v}
}

// NewLit creates a literal node.
func NewLit(kind Kind, value string) *Node {
	return &Node{Kind: kind, Value: value}
}

// NewCall creates a call of callee with args.
func NewCall(callee *Callee, args ...*Node) *Node {
	return &Node{Kind: Call, Callee: callee, Children: args}
}

// At sets the node's position and returns the node.
func (n *Node) At(line, column int) *Node {
	n.Pos = Pos{Line: line, Column: column}
	return n
}

// Child returns the i-th child, or nil when out of range.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// String renders the node as a compact s-expression.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	if n == nil {
		sb.WriteString("nil")
		return
	}
	switch {
	case n.Kind == VarRef:
		if n.Ref {
			sb.WriteByte('&')
		}
		sb.WriteByte('$')
		if n.Var != nil {
			sb.WriteString(n.Var.Name)
		}
		return
	case n.Kind.IsLiteral():
		switch n.Kind {
		case True, False, Null:
			sb.WriteString(n.Kind.String())
		case String:
			fmt.Fprintf(sb, "%q", n.Value)
		default:
			sb.WriteString(n.Value)
		}
		return
	}

	sb.WriteByte('(')
	sb.WriteString(n.Kind.String())
	switch {
	case n.Kind == Call && n.Callee != nil:
		sb.WriteByte(' ')
		sb.WriteString(n.Callee.Name)
	case n.Kind == Break || n.Kind == Continue:
		fmt.Fprintf(sb, " %d", n.Depth)
	case n.Value != "":
		sb.WriteByte(' ')
		sb.WriteString(n.Value)
	}
	for _, c := range n.Children {
		sb.WriteByte(' ')
		c.write(sb)
	}
	sb.WriteByte(')')
}
