package tree

import (
	"fmt"
	"sync/atomic"
)

// VarKind classifies a variable's storage.
type VarKind uint8

const (
	Local VarKind = iota
	Param
	Global
	Static
	Inplace // placement-local, owned by the code generator
	This
	Superlocal
)

func (k VarKind) String() string {
	switch k {
	case Local:
		return "local"
	case Param:
		return "param"
	case Global:
		return "global"
	case Static:
		return "static"
	case Inplace:
		return "inplace"
	case This:
		return "this"
	case Superlocal:
		return "superlocal"
	default:
		return fmt.Sprintf("varkind(%d)", k)
	}
}

// Var is a variable identity. Occurrences in the tree point at it through
// Node.Var; splitting repoints them to fresh identities.
type Var struct {
	ID         int64
	Name       string
	Kind       VarKind
	ParamIndex int
	Default    *Node
	Uninited   bool
}

func (v *Var) String() string {
	return fmt.Sprintf("$%s#%d", v.Name, v.ID)
}

// VarFactory mints fresh variables. Implementations must be safe for
// concurrent use; every call returns a distinct identity.
type VarFactory interface {
	NewVar(name string, kind VarKind) *Var
}

// Registry is the process-wide variable allocator.
type Registry struct {
	next atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewVar allocates a variable with a unique id.
func (r *Registry) NewVar(name string, kind VarKind) *Var {
	return &Var{
		ID:         r.next.Add(1),
		Name:       name,
		Kind:       kind,
		ParamIndex: -1,
	}
}

// Allocated returns the number of variables handed out so far.
func (r *Registry) Allocated() int64 {
	return r.next.Load()
}
