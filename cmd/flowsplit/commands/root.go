package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowsplit/internal/config"
	"github.com/l3aro/go-flowsplit/internal/log"
	"github.com/l3aro/go-flowsplit/pkg/extractor"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "flowsplit",
	Short: "flowsplit - variable splitting and dead code removal for PHP",
	Long: `flowsplit builds a control flow graph for every PHP function, splits
variables whose values never meet into separate variables, removes code that
can never run and warns about reads of possibly uninitialized variables.

Commands:
  analyze     Analyze a file or directory
  cfg         Print the flow graph of one function
  init        Create a project configuration interactively

Use "flowsplit [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute runs the root command. An interrupt cancels the run.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}

func init() {
	RootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads the layered configuration and installs the process
// logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	conf, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = log.DebugLevel
	}
	log.SetDefault(log.New(log.LoggerConfig{Level: level, JSONOutput: conf.JSONLog}))
	return conf, nil
}

// extractorOptions derives call resolution from the configured callee
// knowledge.
func extractorOptions(conf *config.Config) extractor.Options {
	return extractor.Options{
		Signatures: extractor.DefaultSignatures().
			Override(conf.RefParamFunctions).
			MarkThrowing(conf.ThrowingFunctions),
		UnknownCallsThrow: conf.UnknownCallsThrow,
	}
}
