package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-flowsplit/internal/config"
	"github.com/l3aro/go-flowsplit/internal/log"
	"github.com/l3aro/go-flowsplit/internal/scanner"
	"github.com/l3aro/go-flowsplit/pkg/cache"
	"github.com/l3aro/go-flowsplit/pkg/pipeline"
	"github.com/l3aro/go-flowsplit/pkg/tree"
	"github.com/l3aro/go-flowsplit/pkg/types"
)

// errInternal marks a run in which at least one file hit an internal error.
var errInternal = errors.New("internal errors occurred")

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|dir>",
	Short: "Split variables, remove dead code and report uninitialized reads",
	Long: `Analyzes every function of a PHP file, or of every PHP file below a
directory. Files listed in .flowsplitignore are skipped.

Results are cached per file content and configuration in the cache file
named by the configuration (cache_file).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyAnalyzeFlags(cmd, conf); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			format = "json"
		}
		switch format {
		case "text", "json", "msgpack":
		default:
			return fmt.Errorf("unknown format %q (use text, json or msgpack)", format)
		}

		function, _ := cmd.Flags().GetString("function")
		keepTree, _ := cmd.Flags().GetBool("tree")
		noCache, _ := cmd.Flags().GetBool("no-cache")

		run := &analyzeRun{
			conf:     conf,
			function: function,
			useCache: !noCache && !keepTree && conf.CacheFile != "",
			opts: pipeline.Options{
				Registry:       tree.NewRegistry(),
				Extractor:      extractorOptions(conf),
				WarningsLevel:  conf.WarningsLevel,
				MergeSameTypes: conf.MergeSameTypes,
				RemoveDeadCode: conf.RemoveDeadCode,
				Workers:        conf.Workers,
				KeepTree:       keepTree,
				Logger:         log.Default(),
			},
		}
		res, err := run.analyze(cmd, args[0])
		if err != nil {
			return err
		}

		if err := writeResult(cmd.OutOrStdout(), format, res); err != nil {
			return err
		}
		if res.failed {
			return errInternal
		}
		return nil
	},
}

// applyAnalyzeFlags lets command line flags override the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command, conf *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("warnings") {
		conf.WarningsLevel, _ = flags.GetInt("warnings")
	}
	if flags.Changed("workers") {
		conf.Workers, _ = flags.GetInt("workers")
	}
	if noMerge, _ := flags.GetBool("no-merge"); noMerge {
		conf.MergeSameTypes = false
	}
	if keepDead, _ := flags.GetBool("keep-dead"); keepDead {
		conf.RemoveDeadCode = false
	}
	return conf.Validate()
}

type analyzeRun struct {
	conf     *config.Config
	opts     pipeline.Options
	function string
	useCache bool
}

// analyzeResult is what the analyze command prints.
type analyzeResult struct {
	Files   []*types.FileReport `json:"files" msgpack:"files"`
	Errors  []string            `json:"errors,omitempty" msgpack:"errors,omitempty"`
	Summary types.Summary       `json:"summary" msgpack:"summary"`

	failed bool
}

func (r *analyzeRun) analyze(cmd *cobra.Command, root string) (*analyzeResult, error) {
	logger := log.Default()

	files, err := scanner.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	logger.Debug("scanned", "root", root, "files", len(files))

	var reports *cache.LRUCache
	if r.useCache {
		reports = cache.New(cache.Options{MaxSize: r.conf.CacheSize})
		if err := cache.LoadFromFile(reports, r.conf.CacheFile); err != nil {
			logger.Warn("ignoring unreadable cache", "file", r.conf.CacheFile, "error", err)
			reports.Clear()
		}
	}

	var spinner *log.ProgressSpinner
	if log.IsTTY() && len(files) > 1 {
		spinner = log.NewProgressSpinner("Analyzing...")
		spinner.Start()
	}

	res := &analyzeResult{}
	fingerprint := r.conf.Fingerprint()
	for i, f := range files {
		if spinner != nil {
			spinner.Message(fmt.Sprintf("Analyzing %s (%d/%d)", f.Path, i+1, len(files)))
		}
		if err := cmd.Context().Err(); err != nil {
			if spinner != nil {
				spinner.Stop()
			}
			return nil, err
		}

		content, err := os.ReadFile(f.FullPath)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}

		key := cache.Key(fingerprint, content)
		if reports != nil {
			if cached, ok := reports.Get(key); ok {
				report := *cached
				report.Path = f.Path
				res.add(r.filter(&report))
				res.Summary.CacheHits++
				continue
			}
		}

		report, err := pipeline.AnalyzeFile(cmd.Context(), f.Path, content, r.opts)
		if err != nil {
			var ie *tree.InternalError
			if errors.As(err, &ie) {
				res.failed = true
			}
			logger.Error("analysis failed", "file", f.Path, "error", err)
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		report.Hash = key
		if reports != nil {
			reports.Set(key, report)
		}
		res.add(r.filter(report))
	}

	if spinner != nil {
		spinner.Stop()
	}

	if reports != nil {
		if err := cache.PersistToFile(reports, r.conf.CacheFile); err != nil {
			logger.Warn("failed to save cache", "file", r.conf.CacheFile, "error", err)
		}
		logger.Debug("cache", "hit_rate", reports.HitRate(), "entries", reports.Len())
	}
	return res, nil
}

// filter narrows a report to the requested function. The cached report
// is never modified.
func (r *analyzeRun) filter(report *types.FileReport) *types.FileReport {
	if r.function == "" {
		return report
	}
	out := *report
	out.Functions = nil
	for _, fn := range report.Functions {
		if strings.EqualFold(fn.Name, r.function) {
			out.Functions = append(out.Functions, fn)
		}
	}
	return &out
}

func (res *analyzeResult) add(report *types.FileReport) {
	for i := range report.Functions {
		pipeline.SortDiagnostics(report.Functions[i].Diagnostics)
	}
	res.Files = append(res.Files, report)
	res.Summary.Add(report)
}

func writeResult(w io.Writer, format string, res *analyzeResult) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(res)
	}
	printResult(w, res)
	return nil
}

// printResult prints a compiler-style listing.
func printResult(w io.Writer, res *analyzeResult) {
	for _, file := range res.Files {
		for _, fn := range file.Functions {
			for _, d := range fn.Diagnostics {
				fmt.Fprintf(w, "%s:%d:%d: warning: %s (in %s)\n", file.Path, d.Line, d.Column, d.Message, fn.Name)
			}
		}
	}

	for _, file := range res.Files {
		for _, fn := range file.Functions {
			if len(fn.Splits) == 0 && len(fn.Removed) == 0 && fn.Skipped == "" && fn.Tree == "" {
				continue
			}
			fmt.Fprintf(w, "\n%s: %s (line %d, %d/%d nodes reached)\n", file.Path, fn.Name, fn.Line, fn.Reached, fn.Nodes)
			if fn.Skipped != "" {
				fmt.Fprintf(w, "  skipped: %s\n", fn.Skipped)
			}
			for _, sp := range fn.Splits {
				switch {
				case sp.Dropped:
					fmt.Fprintf(w, "  $%s: dropped, never reached\n", sp.Variable)
				case len(sp.Merged) > 0:
					fmt.Fprintf(w, "  $%s: %s -> %s\n", sp.Variable, strings.Join(sp.Parts, ", "), strings.Join(sp.Merged, ", "))
				default:
					fmt.Fprintf(w, "  $%s: %s\n", sp.Variable, strings.Join(sp.Parts, ", "))
				}
			}
			for _, rm := range fn.Removed {
				fmt.Fprintf(w, "  removed %s at %d:%d\n", rm.Kind, rm.Line, rm.Column)
			}
			if fn.Tree != "" {
				fmt.Fprintf(w, "  %s\n", fn.Tree)
			}
		}
	}

	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}

	s := res.Summary
	fmt.Fprintf(w, "\n%d files, %d functions, %d variables split, %d subtrees removed, %d warnings",
		s.Files, s.Functions, s.SplitVars, s.Removed, s.Diagnostics)
	if s.CacheHits > 0 {
		fmt.Fprintf(w, " (%d cached)", s.CacheHits)
	}
	fmt.Fprintln(w)
}

func init() {
	analyzeCmd.Flags().StringP("function", "f", "", "Only report this function (Class::method for methods)")
	analyzeCmd.Flags().BoolP("json", "j", false, "Output as JSON (same as --format json)")
	analyzeCmd.Flags().String("format", "text", "Output format: text, json or msgpack")
	analyzeCmd.Flags().Int("warnings", 1, "Warnings level; 0 disables uninitialized-read warnings")
	analyzeCmd.Flags().Bool("no-merge", false, "Keep split variables of equal type apart")
	analyzeCmd.Flags().Bool("keep-dead", false, "Do not remove unreachable code")
	analyzeCmd.Flags().Int("workers", 0, "Functions analyzed in parallel per file (0 = GOMAXPROCS)")
	analyzeCmd.Flags().Bool("no-cache", false, "Neither read nor write the report cache")
	analyzeCmd.Flags().Bool("tree", false, "Include the rewritten function tree in the output")
	RootCmd.AddCommand(analyzeCmd)
}
