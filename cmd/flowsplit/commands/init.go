package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowsplit/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize flowsplit configuration interactively",
	Long: `Guides you through the analysis settings and writes them to
.flowsplit/config.yaml in the current directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return runInit(force)
	},
}

func runInit(force bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	path := config.ProjectConfigFilePath(cwd)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	conf := config.DefaultConfig()
	warnings := conf.WarningsLevel > 0
	workers := strconv.Itoa(conf.Workers)
	throwing := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Uninitialized reads").
				Description("Warn when a variable may be read before it is assigned?").
				Value(&warnings),
			huh.NewConfirm().
				Title("Merge split variables").
				Description("Rejoin split variables whose types are equal?").
				Value(&conf.MergeSameTypes),
			huh.NewConfirm().
				Title("Dead code").
				Description("Remove statements that can never run?").
				Value(&conf.RemoveDeadCode),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Unknown calls").
				Description("Assume methods, constructors and unresolved functions may throw?").
				Value(&conf.UnknownCallsThrow),
			huh.NewInput().
				Title("Functions that may throw (comma separated, optional)").
				Placeholder("abort, fail").
				Value(&throwing),
			huh.NewInput().
				Title("Parallel workers (0 = one per CPU)").
				Placeholder("0").
				Validate(func(s string) error {
					if n, err := strconv.Atoi(strings.TrimSpace(s)); err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}).
				Value(&workers),
			huh.NewInput().
				Title("Report cache file (empty disables the cache)").
				Placeholder(conf.CacheFile).
				Value(&conf.CacheFile),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	if warnings {
		conf.WarningsLevel = 1
	} else {
		conf.WarningsLevel = 0
	}
	conf.Workers, _ = strconv.Atoi(strings.TrimSpace(workers))
	for _, name := range strings.Split(throwing, ",") {
		if name = strings.TrimSpace(name); name != "" {
			conf.ThrowingFunctions = append(conf.ThrowingFunctions, name)
		}
	}

	if err := conf.Validate(); err != nil {
		return err
	}
	if err := conf.Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	RootCmd.AddCommand(initCmd)
}
