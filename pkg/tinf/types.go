// Package tinf provides the static types the analysis reasons about and a
// small inference pass that assigns one to every variable of a function.
package tinf

import "strings"

// Kind is the primitive part of a type. The declaration order is the sort
// order used when types are compared.
type Kind uint8

const (
	Unknown Kind = iota
	Null
	Bool
	Int
	Float
	String
	Array
	Mixed
)

var kindNames = [...]string{
	Unknown: "unknown",
	Null:    "null",
	Bool:    "bool",
	Int:     "int",
	Float:   "float",
	String:  "string",
	Array:   "array",
	Mixed:   "mixed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Type is a structural static type. Elem is only meaningful for arrays; a
// nil Elem is an array whose element type is not known yet.
type Type struct {
	Kind     Kind
	Elem     *Type
	Nullable bool
}

// Common types.
var (
	TypeUnknown = Type{Kind: Unknown}
	TypeNull    = Type{Kind: Null}
	TypeBool    = Type{Kind: Bool}
	TypeInt     = Type{Kind: Int}
	TypeFloat   = Type{Kind: Float}
	TypeString  = Type{Kind: String}
	TypeMixed   = Type{Kind: Mixed}
)

// ArrayOf returns array<elem>.
func ArrayOf(elem Type) Type {
	return Type{Kind: Array, Elem: &elem}
}

// OrNull returns t made nullable.
func (t Type) OrNull() Type {
	if t.Kind == Null || t.Kind == Mixed || t.Kind == Unknown {
		return t
	}
	t.Nullable = true
	return t
}

// Compare orders types structurally: by kind, then nullability, then
// element type. It returns -1, 0 or 1.
func (t Type) Compare(u Type) int {
	switch {
	case t.Kind != u.Kind:
		if t.Kind < u.Kind {
			return -1
		}
		return 1
	case t.Nullable != u.Nullable:
		if !t.Nullable {
			return -1
		}
		return 1
	case t.Kind != Array:
		return 0
	}
	switch {
	case t.Elem == nil && u.Elem == nil:
		return 0
	case t.Elem == nil:
		return -1
	case u.Elem == nil:
		return 1
	}
	return t.Elem.Compare(*u.Elem)
}

// Equal reports structural equality.
func (t Type) Equal(u Type) bool {
	return t.Compare(u) == 0
}

// String renders the canonical form, e.g. "?int" or "array<string>".
func (t Type) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t Type) write(sb *strings.Builder) {
	if t.Nullable {
		sb.WriteByte('?')
	}
	sb.WriteString(t.Kind.String())
	if t.Kind == Array && t.Elem != nil {
		sb.WriteByte('<')
		t.Elem.write(sb)
		sb.WriteByte('>')
	}
}

// Join returns the least type that holds values of both t and u.
func Join(t, u Type) Type {
	switch {
	case t.Kind == Unknown:
		return u
	case u.Kind == Unknown:
		return t
	case t.Kind == Mixed || u.Kind == Mixed:
		return TypeMixed
	case t.Kind == Null:
		return u.OrNull()
	case u.Kind == Null:
		return t.OrNull()
	}

	nullable := t.Nullable || u.Nullable
	var out Type
	switch {
	case t.Kind == u.Kind && t.Kind == Array:
		out = Type{Kind: Array}
		switch {
		case t.Elem == nil:
			out.Elem = u.Elem
		case u.Elem == nil:
			out.Elem = t.Elem
		default:
			e := Join(*t.Elem, *u.Elem)
			out.Elem = &e
		}
	case t.Kind == u.Kind:
		out = Type{Kind: t.Kind}
	case (t.Kind == Int && u.Kind == Float) || (t.Kind == Float && u.Kind == Int):
		out = TypeFloat
	default:
		return TypeMixed
	}
	out.Nullable = nullable
	return out
}

// Depth returns how deeply arrays nest in t.
func (t Type) Depth() int {
	if t.Kind != Array || t.Elem == nil {
		return 0
	}
	return 1 + t.Elem.Depth()
}
