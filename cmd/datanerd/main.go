// Command datanerd runs automated exploratory analysis over CSV files: it
// profiles the data, plans analysis tasks, generates and executes Go code
// for each task in a sandbox and writes a markdown report.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"datanerd/internal/config"
	"datanerd/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	verbose    bool
	noLLM      bool
	trace      bool
}

// app is the state one invocation of the CLI carries between commands.
type app struct {
	flags globalFlags
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "datanerd",
		Short: "Automated exploratory data analysis with generated Go code",
		Long: `datanerd turns a CSV file into an analysis report.

A fixed graph of nodes profiles the table, plans a handful of analysis
tasks, writes Go code for each task, runs it in a sandboxed interpreter and
revises failing code up to a retry limit. A reporter and a reviewer then
produce the final markdown report.

An LLM is optional. Without one every node falls back to deterministic
templates.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "datanerd.yaml", "Config file (.yaml or .toml)")
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "Dotenv file loaded before the config")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&a.flags.noLLM, "no-llm", false, "Never call an LLM, use deterministic nodes only")
	pf.BoolVar(&a.flags.trace, "trace", false, "Export run and node spans (to tracing.file or stderr)")

	root.AddCommand(
		a.newRunCmd(),
		a.newBatchCmd(),
		a.newWatchCmd(),
		a.newSummarizeCmd(),
		a.newRunsCmd(),
		a.newConfigCmd(),
		a.newSampleCmd(),
	)
	return root
}

// setup loads the environment and config and initializes logging.
func (a *app) setup() error {
	if a.flags.envFile != "" {
		if err := godotenv.Load(a.flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.flags.envFile, err)
		}
	}

	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	if a.flags.verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	if a.flags.noLLM {
		cfg.LLM.Provider = config.ProviderNone
	}
	if a.flags.trace {
		cfg.Tracing.Enabled = true
	}
	if err := logging.Initialize(cfg.Logging.Options()); err != nil {
		return err
	}
	logging.Boot("config loaded from %s (llm=%q)", a.flags.configPath, cfg.LLM.Provider)
	a.cfg = cfg
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}
