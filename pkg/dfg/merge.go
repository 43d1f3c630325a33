package dfg

import (
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/go-flowsplit/pkg/tinf"
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// TypeOracle supplies inferred variable types. SetType lets the merge carry
// a type over to the variable it creates.
type TypeOracle interface {
	TypeOf(v *tree.Var) tinf.Type
	SetType(v *tree.Var, t tinf.Type)
}

// MergeSameTypes recombines the parts of every split whose variables ended
// up with structurally equal types. Parts are ordered by type and each run
// of equal types becomes one variable named <base>$v<k>. The merged
// variable is a parameter when any of its parts was. Split.Vars is updated
// to the merged variables. Merging an already merged result changes
// nothing but variable identities.
func MergeSameTypes(fn *tree.Function, splits []*Split, oracle TypeOracle, factory tree.VarFactory) {
	for _, s := range splits {
		if len(s.Parts) < 2 {
			continue
		}
		mergeSplit(fn, s, oracle, factory)
	}
}

type mergeEntry struct {
	part int
	v    *tree.Var
	t    tinf.Type
}

func mergeSplit(fn *tree.Function, s *Split, oracle TypeOracle, factory tree.VarFactory) {
	entries := make([]mergeEntry, len(s.Parts))
	for i, occ := range s.Parts {
		v := occ[0].Var
		entries[i] = mergeEntry{part: i, v: v, t: oracle.TypeOf(v)}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].t.Compare(entries[j].t) < 0
	})

	mergeID := 0
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].t.Equal(entries[i].t) {
			j++
		}
		group := entries[i:j]

		name := baseName(group[0].v.Name) + "$v" + strconv.Itoa(mergeID)
		mergeID++

		nv := mergeVars(fn, group, name, factory)
		oracle.SetType(nv, group[0].t)
		for _, e := range group {
			for _, occ := range s.Parts[e.part] {
				occ.Var = nv
			}
			s.Vars[e.part] = nv
		}
		i = j
	}
}

// mergeVars replaces the distinct variables of group with one fresh variable.
func mergeVars(fn *tree.Function, group []mergeEntry, name string, factory tree.VarFactory) *tree.Var {
	nv := factory.NewVar(name, tree.Local)

	paramIndex := -1
	var def *tree.Node
	seen := make(map[*tree.Var]bool, len(group))
	for _, e := range group {
		v := e.v
		if seen[v] {
			continue
		}
		seen[v] = true
		switch v.Kind {
		case tree.Param:
			paramIndex = v.ParamIndex
			def = v.Default
		case tree.Local:
			tree.Assert(fn.RemoveLocal(v), fn.Pos, "merged local $%s is not in the variable table of %s", v.Name, fn.Name)
		default:
			tree.Failf(fn.Pos, "cannot merge %s variable $%s", v.Kind, v.Name)
		}
	}

	if paramIndex >= 0 {
		fn.SetParam(paramIndex, nv, def)
	} else {
		fn.AddLocal(nv)
	}
	return nv
}

// baseName strips the part suffix from a split variable's name.
func baseName(name string) string {
	if i := strings.LastIndexByte(name, '$'); i >= 0 {
		return name[:i]
	}
	return name
}
