// Package types defines the report structures produced by an analysis run.
// They are serialized as JSON for humans and tools, and as msgpack for the
// report cache.
package types

// Diagnostic is a warning about the analyzed source.
type Diagnostic struct {
	Function string `json:"function" msgpack:"function"`
	Variable string `json:"variable" msgpack:"variable"`
	Message  string `json:"message" msgpack:"message"`
	Line     int    `json:"line" msgpack:"line"`
	Column   int    `json:"column" msgpack:"column"`
}

// VarSplit records what happened to one variable
type VarSplit struct {
	Variable string `json:"variable" msgpack:"variable"`
	// Parts are the names given to the independent lifetimes.
	Parts []string `json:"parts,omitempty" msgpack:"parts,omitempty"`
	// Merged are the names left after parts of equal type were rejoined.
	Merged []string `json:"merged,omitempty" msgpack:"merged,omitempty"`
	// Dropped is set when no occurrence of the variable was reachable.
	Dropped bool `json:"dropped,omitempty" msgpack:"dropped,omitempty"`
}

// Removed is a subtree replaced by the dead-code sweep.
type Removed struct {
	Kind   string `json:"kind" msgpack:"kind"`
	Line   int    `json:"line" msgpack:"line"`
	Column int    `json:"column" msgpack:"column"`
}

// FunctionReport is the outcome for one function.
type FunctionReport struct {
	Name        string       `json:"name" msgpack:"name"`
	Line        int          `json:"line" msgpack:"line"`
	Nodes       int          `json:"nodes" msgpack:"nodes"`
	Reached     int          `json:"reached" msgpack:"reached"`
	Splits      []VarSplit   `json:"splits,omitempty" msgpack:"splits,omitempty"`
	Removed     []Removed    `json:"removed,omitempty" msgpack:"removed,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
	// Skipped explains why a function was left untouched.
	Skipped string `json:"skipped,omitempty" msgpack:"skipped,omitempty"`
	// Tree is the rewritten function rendered as an s-expression.
	Tree string `json:"tree,omitempty" msgpack:"tree,omitempty"`
}

// FileReport groups the function reports of one source file.
type FileReport struct {
	Path      string           `json:"path" msgpack:"path"`
	Hash      string           `json:"hash,omitempty" msgpack:"hash,omitempty"`
	Functions []FunctionReport `json:"functions" msgpack:"functions"`
}

// Diagnostics returns every diagnostic in the file, in function order.
func (r *FileReport) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, fn := range r.Functions {
		out = append(out, fn.Diagnostics...)
	}
	return out
}

// Summary aggregates a run over many files.
type Summary struct {
	Files       int `json:"files" msgpack:"files"`
	Functions   int `json:"functions" msgpack:"functions"`
	SplitVars   int `json:"split_vars" msgpack:"split_vars"`
	Removed     int `json:"removed" msgpack:"removed"`
	Diagnostics int `json:"diagnostics" msgpack:"diagnostics"`
	CacheHits   int `json:"cache_hits" msgpack:"cache_hits"`
}

// Add folds a file report into the summary.
func (s *Summary) Add(r *FileReport) {
	s.Files++
	for _, fn := range r.Functions {
		s.Functions++
		s.Removed += len(fn.Removed)
		s.Diagnostics += len(fn.Diagnostics)
		for _, sp := range fn.Splits {
			if len(sp.Parts) > 1 {
				s.SplitVars++
			}
		}
	}
}
