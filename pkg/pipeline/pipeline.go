// Package pipeline runs the per-function analysis: graph construction,
// reachability, uninitialized-use detection, variable splitting, dead-code
// removal and type-equal merging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-flowsplit/internal/log"
	"github.com/l3aro/go-flowsplit/pkg/cfg"
	"github.com/l3aro/go-flowsplit/pkg/dfg"
	"github.com/l3aro/go-flowsplit/pkg/extractor"
	"github.com/l3aro/go-flowsplit/pkg/tinf"
	"github.com/l3aro/go-flowsplit/pkg/tree"
	"github.com/l3aro/go-flowsplit/pkg/types"
)

// Options controls a run.
type Options struct {
	// Registry mints variables. It is shared by every function of a run.
	Registry tree.VarFactory
	// Extractor resolves calls while lowering source files.
	Extractor extractor.Options

	WarningsLevel  int
	MergeSameTypes bool
	RemoveDeadCode bool
	// Workers bounds concurrent functions per file; 0 means GOMAXPROCS.
	Workers int
	// KeepTree renders the rewritten function into its report.
	KeepTree bool

	Logger log.Logger
}

// DefaultOptions returns options with every pass enabled.
func DefaultOptions() Options {
	return Options{
		Registry:       tree.NewRegistry(),
		Extractor:      extractor.Options{Signatures: extractor.DefaultSignatures()},
		WarningsLevel:  1,
		MergeSameTypes: true,
		RemoveDeadCode: true,
	}
}

func (o *Options) logger() log.Logger {
	if o.Logger == nil {
		return log.Nop{}
	}
	return o.Logger
}

func (o *Options) registry() tree.VarFactory {
	if o.Registry == nil {
		o.Registry = tree.NewRegistry()
	}
	return o.Registry
}

// Result is the outcome of processing one function.
type Result struct {
	Report *types.FunctionReport
	Graph  *cfg.Graph
	Marks  *cfg.Marks
	Splits []*dfg.Split
	Types  *tinf.Oracle
}

// Process analyses and rewrites fn in place. A broken internal invariant is
// returned as an error wrapping *tree.InternalError; any other panic is not
// recovered.
func Process(fn *tree.Function, opts Options) (res *Result, err error) {
	defer recoverInternal(fn, &err)
	return process(fn, &opts), nil
}

// BuildGraph builds and marks the flow graph of fn without rewriting it.
func BuildGraph(fn *tree.Function) (g *cfg.Graph, marks *cfg.Marks, err error) {
	defer recoverInternal(fn, &err)
	g = cfg.Build(fn, dfg.NewContexts(dfg.SplittableVars(fn)))
	return g, g.Mark(), nil
}

// recoverInternal turns an *tree.InternalError panic into *err. Other
// panics are re-raised.
func recoverInternal(fn *tree.Function, err *error) {
	r := recover()
	if r == nil {
		return
	}
	ie, ok := r.(*tree.InternalError)
	if !ok {
		panic(r)
	}
	if ie.Func == "" {
		ie.Func = fn.Name
	}
	*err = fmt.Errorf("processing %s: %w", fn.Name, ie)
}

func process(fn *tree.Function, opts *Options) *Result {
	logger := opts.logger()
	factory := opts.registry()

	report := &types.FunctionReport{Name: fn.Name, Line: fn.Pos.Line}
	if fn.Dynamic {
		report.Skipped = "variables are accessed by name"
	}

	ctxs := dfg.NewContexts(dfg.SplittableVars(fn))
	g := cfg.Build(fn, ctxs)
	marks := g.Mark()
	report.Nodes = g.Len()
	report.Reached = marks.ReachedCount()

	// Names are captured before splitting renames the occurrences.
	type uninit struct {
		ref  *tree.Node
		name string
	}
	var reads []uninit
	for _, u := range dfg.DetectUninitialized(g, ctxs) {
		reads = append(reads, uninit{ref: u.Ref, name: u.Var().Name})
	}

	splits := dfg.SplitVars(fn, g, marks, ctxs, factory)

	if opts.RemoveDeadCode {
		for _, n := range cfg.Sweep(fn, marks) {
			report.Removed = append(report.Removed, types.Removed{Kind: n.Kind.String(), Line: n.Pos.Line, Column: n.Pos.Column})
		}
	}
	for _, v := range dfg.RestoreOrphans(fn, splits) {
		logger.Debug("restored orphaned variable", "function", fn.Name, "variable", v.Name)
	}

	oracle := tinf.Infer(fn)
	if opts.MergeSameTypes {
		before := snapshotNames(splits)
		dfg.MergeSameTypes(fn, splits, oracle, factory)
		report.Splits = splitReports(splits, before)
	} else {
		report.Splits = splitReports(splits, nil)
	}

	if opts.WarningsLevel >= 1 {
		for _, r := range reads {
			if r.ref.Var == nil {
				continue
			}
			if oracle.TypeOf(r.ref.Var).Kind == tinf.Mixed {
				continue
			}
			report.Diagnostics = append(report.Diagnostics, types.Diagnostic{
				Function: fn.Name,
				Variable: r.name,
				Message:  fmt.Sprintf("Variable [%s] may be used uninitialized", r.name),
				Line:     r.ref.Pos.Line,
				Column:   r.ref.Pos.Column,
			})
		}
	}

	if opts.KeepTree {
		report.Tree = fn.Root.String()
	}

	logger.Debug("processed function",
		"function", fn.Name,
		"nodes", report.Nodes,
		"reached", report.Reached,
		"splits", len(report.Splits),
		"removed", len(report.Removed),
		"diagnostics", len(report.Diagnostics))

	return &Result{Report: report, Graph: g, Marks: marks, Splits: splits, Types: oracle}
}

// snapshotNames records the part names each split had before merging.
func snapshotNames(splits []*dfg.Split) [][]string {
	out := make([][]string, len(splits))
	for i, s := range splits {
		for _, v := range s.Vars {
			out[i] = append(out[i], v.Name)
		}
	}
	return out
}

func splitReports(splits []*dfg.Split, before [][]string) []types.VarSplit {
	var out []types.VarSplit
	for i, s := range splits {
		vs := types.VarSplit{Variable: s.Original.Name, Dropped: s.Dropped}
		if before != nil {
			vs.Parts = before[i]
			seen := make(map[*tree.Var]bool)
			for _, v := range s.Vars {
				if !seen[v] {
					seen[v] = true
					vs.Merged = append(vs.Merged, v.Name)
				}
			}
		} else {
			for _, v := range s.Vars {
				vs.Parts = append(vs.Parts, v.Name)
			}
		}
		out = append(out, vs)
	}
	return out
}

// AnalyzeFile parses a PHP file and processes its functions concurrently.
// Reports keep source order. The first internal error aborts the file.
func AnalyzeFile(ctx context.Context, path string, content []byte, opts Options) (*types.FileReport, error) {
	file, err := extractor.ParsePHP(content, opts.Extractor)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer file.Close()

	fns := file.Functions(opts.registry())
	reports, err := ProcessAll(ctx, fns, opts)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}

	out := &types.FileReport{Path: path, Functions: make([]types.FunctionReport, len(reports))}
	for i, r := range reports {
		out.Functions[i] = *r
	}
	opts.logger().Debug("analyzed file", "file", path, "functions", len(fns))
	return out, nil
}

// ProcessAll processes independent functions in parallel, bounded by
// opts.Workers, and returns their reports in input order.
func ProcessAll(ctx context.Context, fns []*tree.Function, opts Options) ([]*types.FunctionReport, error) {
	opts.registry()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	reports := make([]*types.FunctionReport, len(fns))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Process(fn, opts)
			if err != nil {
				var ie *tree.InternalError
				if errors.As(err, &ie) {
					opts.logger().Warn("internal error", "function", ie.Func, "pos", ie.Pos.String(), "msg", ie.Msg)
				}
				return err
			}
			reports[i] = res.Report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// SortDiagnostics orders diagnostics by position.
func SortDiagnostics(ds []types.Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Line != ds[j].Line {
			return ds[i].Line < ds[j].Line
		}
		return ds[i].Column < ds[j].Column
	})
}
