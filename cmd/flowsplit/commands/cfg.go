package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowsplit/pkg/cfg"
	"github.com/l3aro/go-flowsplit/pkg/extractor"
	"github.com/l3aro/go-flowsplit/pkg/pipeline"
	"github.com/l3aro/go-flowsplit/pkg/tree"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> <function>",
	Short: "Print the control flow graph of a function",
	Long: `Builds the control flow graph of one function or method (Class::method)
and prints its control points with their variable usages. Unreached points
are marked dead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		functionName := args[1]

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("path is a directory, expected a file: %s", filePath)
		}

		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		file, err := extractor.ParseFile(filePath, extractorOptions(conf))
		if err != nil {
			return err
		}
		defer file.Close()

		fn, err := file.Function(functionName, tree.NewRegistry())
		if err != nil {
			if errors.Is(err, extractor.ErrFunctionNotFound) {
				if suggestions := findSimilarFunctions(file.FunctionNames(), functionName); len(suggestions) > 0 {
					return fmt.Errorf("function %q not found in %s\nDid you mean: %s?", functionName, filePath, strings.Join(suggestions, ", "))
				}
				return fmt.Errorf("function %q not found in %s", functionName, filePath)
			}
			return err
		}

		g, marks, err := pipeline.BuildGraph(fn)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if dot, _ := cmd.Flags().GetBool("dot"); dot {
			return g.WriteDOT(out, fn.Name, marks)
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(g.Info(fn.Name, marks), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		return printGraph(out, fn, g, marks)
	},
}

// findSimilarFunctions returns declared names that contain the requested
// one, or are contained in it, ignoring case.
func findSimilarFunctions(names []string, want string) []string {
	want = strings.ToLower(want)
	var out []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, want) || strings.Contains(want, lower) {
			out = append(out, name)
		}
	}
	return out
}

func printGraph(w io.Writer, fn *tree.Function, g *cfg.Graph, marks *cfg.Marks) error {
	info := g.Info(fn.Name, marks)
	fmt.Fprintf(w, "=== CFG for function: %s ===\n", fn.Name)
	fmt.Fprintf(w, "Nodes: %d (%d reached)\n", g.Len(), marks.ReachedCount())
	fmt.Fprintf(w, "Edges: %d\n", g.EdgeCount())
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n\n", info.CyclomaticComplexity)
	return g.Dump(w, marks)
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("dot", false, "Output in Graphviz DOT format")
	RootCmd.AddCommand(cfgCmd)
}
