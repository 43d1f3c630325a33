package extractor

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-flowsplit/pkg/tree"
)

var superglobals = map[string]bool{
	"GLOBALS":  true,
	"_SERVER":  true,
	"_GET":     true,
	"_POST":    true,
	"_FILES":   true,
	"_COOKIE":  true,
	"_SESSION": true,
	"_REQUEST": true,
	"_ENV":     true,
}

// dynamicCalls can read or create variables by name.
var dynamicCalls = map[string]bool{
	"extract":          true,
	"compact":          true,
	"get_defined_vars": true,
	"eval":             true,
}

// scope lowers one function body and owns its variable table.
type scope struct {
	f       *File
	reg     tree.VarFactory
	vars    map[string]*tree.Var
	locals  []*tree.Var
	dynamic bool
}

func (f *File) lower(d decl, reg tree.VarFactory) *tree.Function {
	s := &scope{f: f, reg: reg, vars: make(map[string]*tree.Var)}

	var params []*tree.Var
	var refs []bool
	for _, p := range namedChildren(d.node.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		default:
			continue
		}
		name := strings.TrimPrefix(f.text(p.ChildByFieldName("name")), "$")
		v := reg.NewVar(name, tree.Param)
		if def := p.ChildByFieldName("default_value"); def != nil {
			v.Default = s.expr(def)
		}
		s.vars[name] = v
		params = append(params, v)
		refs = append(refs, isByRef(p))
	}

	body := s.stmt(d.node.ChildByFieldName("body"))

	fn := tree.NewFunction(d.qualified(), params, body)
	for i, ref := range refs {
		fn.ParamBinding(i).Ref = ref
		fn.ParamBinding(i).Pos = pos(d.node)
	}
	fn.Locals = s.locals
	fn.Dynamic = s.dynamic
	fn.Pos = pos(d.node)
	return fn
}

// variable resolves a name to its identity, creating a local on first use.
func (s *scope) variable(name string) *tree.Var {
	if v, ok := s.vars[name]; ok {
		return v
	}
	var v *tree.Var
	switch {
	case name == "this":
		v = s.reg.NewVar(name, tree.This)
	case superglobals[name]:
		v = s.reg.NewVar(name, tree.Superlocal)
	default:
		v = s.reg.NewVar(name, tree.Local)
		s.locals = append(s.locals, v)
	}
	s.vars[name] = v
	return v
}

// declare binds name to storage outside the frame (global or static).
func (s *scope) declare(name string, kind tree.VarKind) {
	v, ok := s.vars[name]
	if !ok {
		s.vars[name] = s.reg.NewVar(name, kind)
		return
	}
	if v.Kind == tree.Local {
		for i, l := range s.locals {
			if l == v {
				s.locals = append(s.locals[:i], s.locals[i+1:]...)
				break
			}
		}
		v.Kind = kind
	}
}

func (s *scope) mk(n *sitter.Node, kind tree.Kind, children ...*tree.Node) *tree.Node {
	out := tree.New(kind, children...)
	if n != nil {
		out.Pos = pos(n)
	}
	return out
}

func (s *scope) ref(n *sitter.Node, name string) *tree.Node {
	out := tree.NewVarRef(s.variable(name))
	out.Pos = pos(n)
	return out
}

func (s *scope) stmts(nodes []*sitter.Node, at *sitter.Node) *tree.Node {
	seq := s.mk(at, tree.Seq)
	for _, c := range nodes {
		seq.Children = append(seq.Children, s.stmt(c))
	}
	return seq
}

func (s *scope) stmt(n *sitter.Node) *tree.Node {
	if n == nil {
		return tree.New(tree.Empty)
	}
	switch n.Type() {
	case "compound_statement", "colon_block":
		return s.stmts(namedChildren(n), n)

	case "expression_statement":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return s.mk(n, tree.Empty)
		}
		return s.expr(kids[0])

	case "empty_statement", "text_interpolation", "function_definition", "class_declaration",
		"interface_declaration", "trait_declaration", "enum_declaration", "namespace_use_declaration",
		"const_declaration":
		return s.mk(n, tree.Empty)

	case "echo_statement":
		out := s.mk(n, tree.Echo)
		for _, c := range namedChildren(n) {
			out.Children = append(out.Children, s.exprList(c)...)
		}
		return out

	case "return_statement":
		out := s.mk(n, tree.Return)
		if kids := namedChildren(n); len(kids) > 0 {
			out.Children = append(out.Children, s.expr(kids[0]))
		}
		return out

	case "if_statement":
		return s.ifStmt(n)

	case "while_statement":
		return s.mk(n, tree.While, s.expr(n.ChildByFieldName("condition")), s.stmt(n.ChildByFieldName("body")))

	case "do_statement":
		return s.mk(n, tree.Do, s.stmt(n.ChildByFieldName("body")), s.expr(n.ChildByFieldName("condition")))

	case "for_statement":
		return s.forStmt(n)

	case "foreach_statement":
		return s.foreachStmt(n)

	case "switch_statement":
		return s.switchStmt(n)

	case "break_statement", "continue_statement":
		kind := tree.Break
		if n.Type() == "continue_statement" {
			kind = tree.Continue
		}
		out := s.mk(n, kind)
		out.Depth = 1
		for _, c := range namedChildren(n) {
			if c.Type() == "integer" {
				if d, err := strconv.Atoi(s.f.text(c)); err == nil {
					out.Depth = d
				}
			}
		}
		return out

	case "try_statement":
		return s.tryStmt(n)

	case "throw_statement":
		return s.mk(n, tree.Throw, s.expr(firstNamed(n)))

	case "unset_statement":
		out := s.mk(n, tree.Unset)
		for _, c := range namedChildren(n) {
			out.Children = append(out.Children, s.expr(c))
		}
		return out

	case "global_declaration":
		for _, c := range namedChildren(n) {
			if c.Type() == "variable_name" {
				s.declare(varName(s.f, c), tree.Global)
			}
		}
		return s.mk(n, tree.Empty)

	case "function_static_declaration":
		for _, c := range namedChildren(n) {
			if c.Type() == "static_variable_declaration" {
				s.declare(varName(s.f, c.ChildByFieldName("name")), tree.Static)
			}
		}
		return s.mk(n, tree.Empty)
	}
	return s.expr(n)
}

func (s *scope) ifStmt(n *sitter.Node) *tree.Node {
	cond := s.expr(n.ChildByFieldName("condition"))
	body := s.stmt(n.ChildByFieldName("body"))

	var alts []*sitter.Node
	for _, c := range namedChildren(n) {
		if c.Type() == "else_if_clause" || c.Type() == "else_clause" {
			alts = append(alts, c)
		}
	}
	var els *tree.Node
	for i := len(alts) - 1; i >= 0; i-- {
		a := alts[i]
		if a.Type() == "else_clause" {
			els = s.stmt(a.ChildByFieldName("body"))
			continue
		}
		nested := s.mk(a, tree.If, s.expr(a.ChildByFieldName("condition")), s.stmt(a.ChildByFieldName("body")))
		if els != nil {
			nested.Children = append(nested.Children, els)
		}
		els = nested
	}

	out := s.mk(n, tree.If, cond, body)
	if els != nil {
		out.Children = append(out.Children, els)
	}
	return out
}

// forStmt splits the header on its semicolons so missing clauses are kept
// in place.
func (s *scope) forStmt(n *sitter.Node) *tree.Node {
	var sections [3][]*sitter.Node
	var body []*sitter.Node
	section, inHeader, done := 0, false, false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case done:
			if c.IsNamed() && c.Type() != "comment" {
				body = append(body, c)
			}
		case c.Type() == "(" && !inHeader:
			inHeader = true
		case c.Type() == ";" && inHeader:
			section++
		case c.Type() == ")" && inHeader:
			done = true
		case inHeader && c.IsNamed() && c.Type() != "comment" && section < 3:
			sections[section] = append(sections[section], c)
		}
	}

	clause := func(nodes []*sitter.Node) *tree.Node {
		out := s.mk(n, tree.Comma)
		for _, c := range nodes {
			out.Children = append(out.Children, s.exprList(c)...)
		}
		return out
	}
	cond := clause(sections[1])
	switch len(cond.Children) {
	case 0:
		cond = tree.NewLit(tree.True, "true")
		cond.Pos = pos(n)
	case 1:
		cond = cond.Children[0]
	}

	var b *tree.Node
	if len(body) == 1 {
		b = s.stmt(body[0])
	} else {
		b = s.stmts(body, n)
	}
	return s.mk(n, tree.For, clause(sections[0]), cond, clause(sections[2]), b)
}

func (s *scope) foreachStmt(n *sitter.Node) *tree.Node {
	var collection, binding *sitter.Node
	var body []*sitter.Node
	state := 0
	byRef := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.Type() == "as" && state == 0:
			state = 1
		case c.Type() == ")" && state == 1:
			state = 2
		case c.Type() == "&" && state == 1:
			byRef = true
		case !c.IsNamed() || c.Type() == "comment":
		case state == 0:
			collection = c
		case state == 1:
			binding = c
		default:
			body = append(body, c)
		}
	}

	var value, key *tree.Node
	if binding != nil && binding.Type() == "pair" {
		kids := namedChildren(binding)
		if len(kids) == 2 {
			key = s.target(kids[0])
			binding = kids[1]
		}
	}
	value = s.target(binding)
	if byRef && value.Kind == tree.VarRef {
		value.Ref = true
	}
	if key == nil {
		key = s.mk(n, tree.Empty)
	}

	var b *tree.Node
	if len(body) == 1 {
		b = s.stmt(body[0])
	} else {
		b = s.stmts(body, n)
	}
	return s.mk(n, tree.Foreach, s.expr(collection), value, key, b)
}

func (s *scope) switchStmt(n *sitter.Node) *tree.Node {
	out := s.mk(n, tree.Switch, s.expr(n.ChildByFieldName("condition")), s.mk(n, tree.Seq))
	for _, c := range namedChildren(n.ChildByFieldName("body")) {
		switch c.Type() {
		case "case_statement":
			label := c.ChildByFieldName("value")
			var rest []*sitter.Node
			for _, k := range namedChildren(c) {
				if label == nil || !sameNode(k, label) {
					rest = append(rest, k)
				}
			}
			out.Children = append(out.Children, s.mk(c, tree.Case, s.expr(label), s.stmts(rest, c)))
		case "default_statement":
			out.Children = append(out.Children, s.mk(c, tree.Default, s.stmts(namedChildren(c), c)))
		}
	}
	return out
}

// tryStmt lowers try/catch. A finally block runs after the whole construct;
// a try without catch clauses is just its body.
func (s *scope) tryStmt(n *sitter.Node) *tree.Node {
	body := s.stmt(n.ChildByFieldName("body"))
	var catches []*tree.Node
	var finally *tree.Node
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "catch_clause":
			binding := s.mk(c, tree.Empty)
			if name := c.ChildByFieldName("name"); name != nil {
				binding = s.ref(name, varName(s.f, name))
			}
			catches = append(catches, s.mk(c, tree.Catch, binding, s.stmt(c.ChildByFieldName("body"))))
		case "finally_clause":
			finally = s.stmt(c.ChildByFieldName("body"))
		}
	}

	out := body
	if len(catches) > 0 {
		out = s.mk(n, tree.Try, append([]*tree.Node{body}, catches...)...)
	}
	if finally != nil {
		out = s.mk(n, tree.Seq, out, finally)
	}
	return out
}

// exprList flattens comma sequences.
func (s *scope) exprList(n *sitter.Node) []*tree.Node {
	if n.Type() != "sequence_expression" {
		return []*tree.Node{s.expr(n)}
	}
	var out []*tree.Node
	for _, c := range namedChildren(n) {
		out = append(out, s.exprList(c)...)
	}
	return out
}

// target lowers an assignment destination.
func (s *scope) target(n *sitter.Node) *tree.Node {
	if n == nil {
		return tree.New(tree.Empty)
	}
	switch n.Type() {
	case "list_literal", "array_creation_expression":
		out := s.mk(n, tree.List, s.mk(n, tree.Empty))
		for _, el := range namedChildren(n) {
			if el.Type() == "array_element_initializer" {
				kids := namedChildren(el)
				if len(kids) == 0 {
					out.Children = append(out.Children, s.mk(el, tree.Empty))
					continue
				}
				el = kids[len(kids)-1]
			}
			out.Children = append(out.Children, s.target(el))
		}
		return out
	case "by_ref":
		t := s.target(firstNamed(n))
		t.Ref = t.Kind == tree.VarRef
		return t
	}
	return s.expr(n)
}

func (s *scope) expr(n *sitter.Node) *tree.Node {
	if n == nil {
		return tree.New(tree.Empty)
	}
	switch n.Type() {
	case "parenthesized_expression", "error_suppression_expression":
		return s.expr(firstNamed(n))

	case "variable_name":
		return s.ref(n, varName(s.f, n))

	case "by_ref":
		return s.target(n)

	case "dynamic_variable_name":
		s.dynamic = true
		return s.other(n)

	case "integer":
		return s.lit(n, tree.Int, s.f.text(n))
	case "float":
		return s.lit(n, tree.Float, s.f.text(n))
	case "boolean":
		if strings.EqualFold(s.f.text(n), "true") {
			return s.lit(n, tree.True, "true")
		}
		return s.lit(n, tree.False, "false")
	case "null":
		return s.lit(n, tree.Null, "null")
	case "name", "qualified_name", "class_constant_access_expression":
		if strings.EqualFold(s.f.text(n), "null") {
			return s.lit(n, tree.Null, "null")
		}
		return s.lit(n, tree.Const, s.f.text(n))

	case "string", "encapsed_string", "heredoc", "nowdoc":
		return s.str(n)

	case "assignment_expression":
		left := n.ChildByFieldName("left")
		right := s.expr(n.ChildByFieldName("right"))
		lhs := s.target(left)
		if lhs.Kind == tree.List {
			lhs.Children[0] = right
			lhs.Pos = pos(n)
			return lhs
		}
		return s.mk(n, tree.Assign, lhs, right)

	case "reference_assignment_expression":
		lhs := s.target(n.ChildByFieldName("left"))
		rhs := s.expr(n.ChildByFieldName("right"))
		for _, side := range []*tree.Node{lhs, rhs} {
			if side.Kind == tree.VarRef {
				side.Ref = true
			}
		}
		return s.mk(n, tree.Assign, lhs, rhs)

	case "augmented_assignment_expression":
		out := s.mk(n, tree.AssignOp, s.target(n.ChildByFieldName("left")), s.expr(n.ChildByFieldName("right")))
		out.Value = s.f.text(n.ChildByFieldName("operator"))
		return out

	case "update_expression":
		var operand *sitter.Node
		op := "+="
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			switch {
			case c.Type() == "--":
				op = "-="
			case c.IsNamed():
				operand = c
			}
		}
		out := s.mk(n, tree.AssignOp, s.target(operand), s.lit(n, tree.Int, "1"))
		out.Value = op
		return out

	case "binary_expression":
		return s.binary(n)

	case "unary_op_expression":
		op := ""
		if c := n.Child(0); c != nil && !c.IsNamed() {
			op = c.Type()
		}
		x := s.expr(firstNamed(n))
		if op == "!" {
			return s.mk(n, tree.Not, x)
		}
		out := s.mk(n, tree.Unary, x)
		out.Value = op
		return out

	case "cast_expression":
		out := s.mk(n, tree.Conv, s.expr(n.ChildByFieldName("value")))
		out.Value = castType(s.f.text(n.ChildByFieldName("type")))
		return out

	case "conditional_expression":
		cond := s.expr(n.ChildByFieldName("condition"))
		alt := s.expr(n.ChildByFieldName("alternative"))
		body := n.ChildByFieldName("body")
		if body == nil {
			out := s.mk(n, tree.Binary, cond, alt)
			out.Value = "?:"
			return out
		}
		return s.mk(n, tree.Ternary, cond, s.expr(body), alt)

	case "subscript_expression":
		kids := namedChildren(n)
		out := s.mk(n, tree.Index)
		for i, c := range kids {
			if i > 1 {
				break
			}
			out.Children = append(out.Children, s.expr(c))
		}
		return out

	case "function_call_expression":
		return s.call(n)

	case "member_call_expression", "nullsafe_member_call_expression":
		callee := &tree.Callee{Name: "->" + s.f.text(n.ChildByFieldName("name")), Throws: s.f.opts.UnknownCallsThrow}
		args := append([]*tree.Node{s.expr(n.ChildByFieldName("object"))}, s.args(n.ChildByFieldName("arguments"))...)
		return s.callNode(n, callee, args)

	case "scoped_call_expression":
		name := s.f.text(n.ChildByFieldName("scope")) + "::" + s.f.text(n.ChildByFieldName("name"))
		callee := &tree.Callee{Name: name, Throws: s.f.opts.UnknownCallsThrow}
		return s.callNode(n, callee, s.args(n.ChildByFieldName("arguments")))

	case "object_creation_expression":
		class := ""
		var args []*tree.Node
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "arguments":
				args = s.args(c)
			case "name", "qualified_name":
				class = s.f.text(c)
			}
		}
		return s.callNode(n, &tree.Callee{Name: "new " + class, Throws: s.f.opts.UnknownCallsThrow}, args)

	case "print_intrinsic":
		return s.callNode(n, s.f.callee("print"), []*tree.Node{s.expr(firstNamed(n))})

	case "array_creation_expression":
		out := s.mk(n, tree.Array)
		for _, el := range namedChildren(n) {
			kids := namedChildren(el)
			switch {
			case el.Type() != "array_element_initializer":
				out.Children = append(out.Children, s.expr(el))
			case len(kids) == 2:
				out.Children = append(out.Children, s.mk(el, tree.Pair, s.expr(kids[0]), s.expr(kids[1])))
			case len(kids) == 1:
				out.Children = append(out.Children, s.expr(kids[0]))
			}
		}
		return out

	case "anonymous_function_creation_expression", "anonymous_function":
		out := s.mk(n, tree.Closure)
		for _, c := range namedChildren(n) {
			if c.Type() != "anonymous_function_use_clause" {
				continue
			}
			for _, u := range namedChildren(c) {
				out.Children = append(out.Children, s.target(u))
			}
		}
		return out

	case "arrow_function":
		return s.arrow(n)

	case "throw_expression":
		return s.mk(n, tree.Throw, s.expr(firstNamed(n)))

	case "clone_expression":
		out := s.mk(n, tree.Unary, s.expr(firstNamed(n)))
		out.Value = "clone"
		return out

	case "sequence_expression":
		return s.mk(n, tree.Comma, s.exprList(n)...)

	case "include_expression", "include_once_expression", "require_expression", "require_once_expression":
		s.dynamic = true
		return s.other(n)
	}
	return s.other(n)
}

// other keeps an unmodelled construct with its lowered operands so its
// variable occurrences stay visible.
func (s *scope) other(n *sitter.Node) *tree.Node {
	out := s.mk(n, tree.Other)
	out.Value = n.Type()
	for _, c := range namedChildren(n) {
		out.Children = append(out.Children, s.expr(c))
	}
	return out
}

func (s *scope) lit(n *sitter.Node, kind tree.Kind, value string) *tree.Node {
	out := tree.NewLit(kind, value)
	out.Pos = pos(n)
	return out
}

func isInterpolated(typ string) bool {
	switch typ {
	case "variable_name", "dynamic_variable_name", "subscript_expression",
		"member_access_expression", "nullsafe_member_access_expression",
		"member_call_expression", "function_call_expression":
		return true
	}
	return false
}

// str lowers a string literal. Interpolated strings become a concatenation
// of their embedded expressions.
func (s *scope) str(n *sitter.Node) *tree.Node {
	var parts []*tree.Node
	walk(n, func(c *sitter.Node) bool {
		if sameNode(c, n) {
			return true
		}
		if isInterpolated(c.Type()) {
			parts = append(parts, s.expr(c))
			return false
		}
		return true
	})

	if len(parts) == 0 {
		text := s.f.text(n)
		if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') {
			text = text[1 : len(text)-1]
		}
		return s.lit(n, tree.String, text)
	}
	out := s.lit(n, tree.String, "")
	for _, p := range parts {
		cat := s.mk(n, tree.Binary, out, p)
		cat.Value = "."
		out = cat
	}
	return out
}

func (s *scope) binary(n *sitter.Node) *tree.Node {
	op := strings.ToLower(s.f.text(n.ChildByFieldName("operator")))
	lhs := s.expr(n.ChildByFieldName("left"))
	rhs := s.expr(n.ChildByFieldName("right"))

	var out *tree.Node
	switch op {
	case "&&", "and":
		return s.mk(n, tree.And, lhs, rhs)
	case "||", "or":
		return s.mk(n, tree.Or, lhs, rhs)
	case "==", "===":
		out = s.mk(n, tree.Eq, lhs, rhs)
	case "!=", "!==", "<>":
		out = s.mk(n, tree.Neq, lhs, rhs)
	default:
		out = s.mk(n, tree.Binary, lhs, rhs)
	}
	out.Value = op
	return out
}

func (s *scope) call(n *sitter.Node) *tree.Node {
	fn := n.ChildByFieldName("function")
	args := s.args(n.ChildByFieldName("arguments"))
	if fn == nil || !isName(fn) {
		callee := &tree.Callee{Throws: s.f.opts.UnknownCallsThrow}
		return s.callNode(n, callee, append([]*tree.Node{s.expr(fn)}, args...))
	}

	name := s.f.calleeName(fn)
	key := strings.ToLower(name)
	if dynamicCalls[key] {
		s.dynamic = true
	}
	switch key {
	case "isset", "empty":
		out := s.mk(n, tree.Isset, args...)
		out.Value = key
		return out
	}
	return s.callNode(n, s.f.callee(name), args)
}

func (s *scope) callNode(n *sitter.Node, callee *tree.Callee, args []*tree.Node) *tree.Node {
	out := tree.NewCall(callee, args...)
	out.Pos = pos(n)
	return out
}

func (s *scope) args(n *sitter.Node) []*tree.Node {
	var out []*tree.Node
	for _, a := range namedChildren(n) {
		if a.Type() != "argument" {
			out = append(out, s.expr(a))
			continue
		}
		kids := namedChildren(a)
		if len(kids) == 0 {
			continue
		}
		// Named arguments carry the name first.
		out = append(out, s.expr(kids[len(kids)-1]))
	}
	return out
}

// arrow lowers fn(...) => expr. The body sees the enclosing variables by
// value, so every free variable it mentions is captured.
func (s *scope) arrow(n *sitter.Node) *tree.Node {
	own := make(map[string]bool)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		own[varName(s.f, p.ChildByFieldName("name"))] = true
	}

	out := s.mk(n, tree.Closure)
	seen := make(map[string]bool)
	walk(n.ChildByFieldName("body"), func(c *sitter.Node) bool {
		switch c.Type() {
		case "anonymous_function_creation_expression", "anonymous_function":
			return false
		case "variable_name":
			name := varName(s.f, c)
			if !own[name] && !seen[name] && name != "this" {
				seen[name] = true
				out.Children = append(out.Children, s.ref(c, name))
			}
			return false
		}
		return true
	})
	return out
}

func castType(text string) string {
	t := strings.ToLower(strings.Trim(text, "() \t"))
	switch t {
	case "integer":
		return "int"
	case "boolean":
		return "bool"
	case "double", "real":
		return "float"
	case "binary":
		return "string"
	}
	return t
}

func varName(f *File, n *sitter.Node) string {
	return strings.TrimPrefix(f.text(n), "$")
}

func firstNamed(n *sitter.Node) *sitter.Node {
	kids := namedChildren(n)
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
