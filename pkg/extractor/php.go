// Package extractor parses PHP source with tree-sitter and lowers its
// functions and methods into analysis trees.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// ErrFunctionNotFound is returned when a named function is not declared in the file.
var ErrFunctionNotFound = errors.New("function not found")

// phpParserPool is a pool of reusable tree-sitter parsers for PHP.
var phpParserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(php.GetLanguage())
		return parser
	},
}

// Options controls how calls are resolved during lowering.
type Options struct {
	// Signatures describes runtime functions. Nil means DefaultSignatures.
	Signatures Signatures
	// UnknownCallsThrow treats method calls, constructors and unresolved
	// functions as possibly raising.
	UnknownCallsThrow bool
}

// File is a parsed PHP source file.
type File struct {
	Path    string
	content []byte
	tree    *sitter.Tree
	opts    Options
	decls   []decl
	sigs    Signatures
}

type decl struct {
	name  string
	class string
	node  *sitter.Node
}

func (d decl) qualified() string {
	if d.class == "" {
		return d.name
	}
	return d.class + "::" + d.name
}

// ParseFile reads and parses a PHP file.
func ParseFile(path string, opts Options) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	f, err := ParsePHP(content, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing file %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// ParsePHP parses PHP source held in memory.
func ParsePHP(content []byte, opts Options) (*File, error) {
	parser := phpParserPool.Get().(*sitter.Parser)
	defer phpParserPool.Put(parser)

	t, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("tree-sitter returned no tree")
	}

	if opts.Signatures == nil {
		opts.Signatures = DefaultSignatures()
	}
	f := &File{
		content: content,
		tree:    t,
		opts:    opts,
	}
	f.collectDecls(t.RootNode(), "")
	f.sigs = f.resolveSignatures()
	return f, nil
}

// Close releases the syntax tree.
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// FunctionNames lists declared functions and methods in source order.
// Methods are named Class::method.
func (f *File) FunctionNames() []string {
	names := make([]string, 0, len(f.decls))
	for _, d := range f.decls {
		names = append(names, d.qualified())
	}
	return names
}

// Functions lowers every declared function and method.
func (f *File) Functions(reg tree.VarFactory) []*tree.Function {
	out := make([]*tree.Function, 0, len(f.decls))
	for _, d := range f.decls {
		out = append(out, f.lower(d, reg))
	}
	return out
}

// Function lowers a single function or method by name.
func (f *File) Function(name string, reg tree.VarFactory) (*tree.Function, error) {
	for _, d := range f.decls {
		if d.qualified() == name || (d.class == "" && strings.EqualFold(d.name, name)) {
			return f.lower(d, reg), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
}

func (f *File) collectDecls(node *sitter.Node, class string) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "function_definition":
		if body := node.ChildByFieldName("body"); body != nil {
			f.decls = append(f.decls, decl{name: f.text(node.ChildByFieldName("name")), node: node})
		}
		return
	case "method_declaration":
		if body := node.ChildByFieldName("body"); body != nil {
			f.decls = append(f.decls, decl{name: f.text(node.ChildByFieldName("name")), class: class, node: node})
		}
		return
	case "class_declaration", "trait_declaration", "enum_declaration", "interface_declaration":
		class = f.text(node.ChildByFieldName("name"))
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		f.collectDecls(node.NamedChild(i), class)
	}
}

// resolveSignatures computes the signatures of functions declared in the
// file. A function throws when it contains a throw or calls something that
// throws; the flag is propagated until nothing changes.
func (f *File) resolveSignatures() Signatures {
	sigs := f.opts.Signatures.clone()

	type facts struct {
		callee *tree.Callee
		calls  []string
		opaque bool
		direct bool
	}
	local := make(map[string]*facts)
	for _, d := range f.decls {
		if d.class != "" {
			continue
		}
		callee := &tree.Callee{Name: d.name}
		params := d.node.ChildByFieldName("parameters")
		for i := 0; params != nil && i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "variadic_parameter":
				callee.Variadic = true
			case "simple_parameter", "property_promotion_parameter":
			default:
				continue
			}
			if isByRef(p) {
				callee.RefParams = append(callee.RefParams, i)
			}
		}
		fc := &facts{callee: callee}
		walk(d.node.ChildByFieldName("body"), func(n *sitter.Node) bool {
			switch n.Type() {
			case "throw_expression", "throw_statement":
				fc.direct = true
			case "function_call_expression":
				if fn := n.ChildByFieldName("function"); fn != nil && isName(fn) {
					fc.calls = append(fc.calls, strings.ToLower(f.calleeName(fn)))
				} else {
					fc.opaque = true
				}
			case "member_call_expression", "nullsafe_member_call_expression", "scoped_call_expression", "object_creation_expression":
				fc.opaque = true
			case "anonymous_function_creation_expression", "anonymous_function", "arrow_function":
				return false
			}
			return true
		})
		local[strings.ToLower(d.name)] = fc
		sigs[strings.ToLower(d.name)] = callee
	}

	for _, fc := range local {
		fc.callee.Throws = fc.direct || (fc.opaque && f.opts.UnknownCallsThrow)
	}
	for changed := true; changed; {
		changed = false
		for _, fc := range local {
			if fc.callee.Throws {
				continue
			}
			for _, name := range fc.calls {
				c := sigs[name]
				if (c == nil && f.opts.UnknownCallsThrow) || (c != nil && c.Throws) {
					fc.callee.Throws = true
					changed = true
					break
				}
			}
		}
	}
	return sigs
}

// callee resolves a called name.
func (f *File) callee(name string) *tree.Callee {
	if c := f.sigs.Lookup(name); c != nil {
		return c
	}
	return &tree.Callee{Name: name, Throws: f.opts.UnknownCallsThrow}
}

func (f *File) calleeName(n *sitter.Node) string {
	name := strings.TrimPrefix(f.text(n), "\\")
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// text extracts text from a node.
func (f *File) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start >= uint32(len(f.content)) || end > uint32(len(f.content)) {
		return ""
	}
	return string(f.content[start:end])
}

func pos(n *sitter.Node) tree.Pos {
	p := n.StartPoint()
	return tree.Pos{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

func isName(n *sitter.Node) bool {
	return n.Type() == "name" || n.Type() == "qualified_name"
}

// isByRef reports whether a parameter or binding carries a & marker.
func isByRef(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "reference_modifier" || c.Type() == "&" {
			return true
		}
	}
	return false
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}
