package extractor

import (
	"strings"

	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// Signatures maps lower-cased function names to their call signatures.
type Signatures map[string]*tree.Callee

// builtinRefParams lists runtime functions that take arguments by reference.
var builtinRefParams = map[string][]int{
	"sort":           {0},
	"rsort":          {0},
	"usort":          {0},
	"uasort":         {0},
	"uksort":         {0},
	"ksort":          {0},
	"krsort":         {0},
	"asort":          {0},
	"arsort":         {0},
	"shuffle":        {0},
	"array_push":     {0},
	"array_pop":      {0},
	"array_shift":    {0},
	"array_unshift":  {0},
	"array_splice":   {0},
	"array_walk":     {0},
	"end":            {0},
	"reset":          {0},
	"next":           {0},
	"prev":           {0},
	"settype":        {0},
	"parse_str":      {1},
	"preg_match":     {2},
	"preg_match_all": {2},
	"str_replace":    {3},
	"str_ireplace":   {3},
	"exec":           {1, 2},
}

// builtinVariadic lists runtime functions declared with a variadic tail.
var builtinVariadic = map[string]bool{
	"sprintf":     true,
	"printf":      true,
	"max":         true,
	"min":         true,
	"array_merge": true,
	"compact":     true,
}

// DefaultSignatures returns the built-in runtime signatures.
func DefaultSignatures() Signatures {
	sigs := make(Signatures, len(builtinRefParams)+len(builtinVariadic))
	for name, refs := range builtinRefParams {
		sigs[name] = &tree.Callee{Name: name, RefParams: append([]int(nil), refs...)}
	}
	for name := range builtinVariadic {
		sigs.get(name).Variadic = true
	}
	return sigs
}

func (s Signatures) get(name string) *tree.Callee {
	key := strings.ToLower(name)
	c := s[key]
	if c == nil {
		c = &tree.Callee{Name: key}
		s[key] = c
	}
	return c
}

// Override replaces the by-reference positions of the named functions.
func (s Signatures) Override(refParams map[string][]int) Signatures {
	for name, refs := range refParams {
		s.get(name).RefParams = append([]int(nil), refs...)
	}
	return s
}

// MarkThrowing flags the named functions as possibly raising.
func (s Signatures) MarkThrowing(names []string) Signatures {
	for _, name := range names {
		s.get(name).Throws = true
	}
	return s
}

// Lookup returns the signature for name, or nil.
func (s Signatures) Lookup(name string) *tree.Callee {
	return s[strings.ToLower(name)]
}

func (s Signatures) clone() Signatures {
	out := make(Signatures, len(s))
	for k, v := range s {
		c := *v
		out[k] = &c
	}
	return out
}
