package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"datanerd/internal/graph"
	"datanerd/internal/intake"
	"datanerd/internal/logging"
)

// runFlags override engine settings from the config.
type runFlags struct {
	maxRetries  int
	stepBudget  int
	taskTimeout time.Duration
	maxTasks    int
	noStore     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVar(&f.maxRetries, "max-retries", 0, "Failed attempts allowed per task (default from config)")
	fl.IntVar(&f.stepBudget, "step-budget", 0, "Maximum node invocations per run (default from config)")
	fl.DurationVar(&f.taskTimeout, "task-timeout", 0, "Deadline for one code execution attempt (default from config)")
	fl.IntVar(&f.maxTasks, "max-tasks", 0, "Maximum tasks in a plan (default from config)")
	fl.BoolVar(&f.noStore, "no-store", false, "Do not archive runs")
}

// apply writes the set flags into the config held by a.
func (f *runFlags) apply(a *app) {
	if f.maxRetries > 0 {
		a.cfg.Engine.MaxRetries = f.maxRetries
	}
	if f.stepBudget > 0 {
		a.cfg.Engine.StepBudget = f.stepBudget
	}
	if f.taskTimeout > 0 {
		a.cfg.Engine.PerTaskTimeout = f.taskTimeout.String()
	}
	if f.maxTasks > 0 {
		a.cfg.Planner.MaxTasks = f.maxTasks
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) newRunCmd() *cobra.Command {
	var (
		rf     runFlags
		out    string
		render bool
		tui    bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "run <file.csv>",
		Short: "Analyze one CSV file and print the report",
		Long: `Runs the full analysis graph over one CSV file.

The report goes to stdout (or --out). The run is archived under the store
directory unless --no-store is given. The command fails when the run does
not complete, after printing whatever partial report was produced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf.apply(a)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := newPipeline(ctx, a.cfg, !rf.noStore)
			if err != nil {
				return err
			}
			defer p.Close()

			var o *outcome
			if tui {
				o, err = runWithProgress(ctx, p, args[0])
			} else {
				o, err = p.analyze(ctx, args[0], nil)
			}
			if err != nil && o == nil {
				return err
			}
			if err != nil {
				logging.Get(logging.CategoryStore).Warn("archiving failed: %v", err)
			}
			return a.printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), o, out, render, width)
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&render, "render", false, "Render the report as styled markdown")
	cmd.Flags().BoolVar(&tui, "tui", false, "Show live progress while the run executes")
	cmd.Flags().IntVar(&width, "width", 100, "Wrap width for --render")
	return cmd
}

// printOutcome writes the report and a status line, and turns a run that did
// not complete into an error.
func (a *app) printOutcome(stdout, stderr io.Writer, o *outcome, out string, render bool, width int) error {
	res := o.Result
	report := res.Report

	if out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(out, []byte(report), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		if render {
			rendered, err := renderMarkdown(report, width)
			if err != nil {
				logging.Get(logging.CategoryBoot).Warn("markdown rendering failed: %v", err)
			} else {
				report = rendered
			}
		}
		fmt.Fprintln(stdout, report)
	}

	fmt.Fprintln(stderr, statusLine(o))
	for _, n := range res.Notes {
		fmt.Fprintln(stderr, dimStyle.Render("  note: "+n))
	}
	if o.RunDir != "" {
		fmt.Fprintln(stderr, dimStyle.Render("  archived to "+o.RunDir))
	}
	if out != "" {
		fmt.Fprintln(stderr, dimStyle.Render("  report written to "+out))
	}

	if res.Status != graph.StatusCompleted {
		if res.Err != nil {
			return fmt.Errorf("run %s %s: %w", res.RunID, res.Status, res.Err)
		}
		return fmt.Errorf("run %s %s", res.RunID, res.Status)
	}
	return nil
}

func (a *app) newBatchCmd() *cobra.Command {
	var (
		rf       runFlags
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "batch <file.csv|dir>...",
		Short: "Analyze many CSV files concurrently",
		Long: `Runs one independent analysis per CSV file. Directories are expanded to
the CSV files directly inside them. Reports are archived; a summary line is
printed per file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf.apply(a)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			files, err := expandInputs(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no CSV files found")
			}

			p, err := newPipeline(ctx, a.cfg, !rf.noStore)
			if err != nil {
				return err
			}
			defer p.Close()

			outcomes, failed := runBatch(ctx, p, files, parallel, cmd.ErrOrStderr())
			for _, o := range outcomes {
				if o != nil {
					fmt.Fprintln(cmd.OutOrStdout(), statusLine(o))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) did not complete", failed, len(files))
			}
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Files analyzed at the same time")
	return cmd
}

// runBatch analyzes files with at most parallel runs in flight. Outcomes are
// returned in input order; a nil entry means the file could not be loaded.
func runBatch(ctx context.Context, p *pipeline, files []string, parallel int, errw io.Writer) ([]*outcome, int) {
	if parallel <= 0 {
		parallel = 1
	}
	outcomes := make([]*outcome, len(files))
	var (
		mu     sync.Mutex
		failed int
	)

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			o, err := p.analyze(ctx, f, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fmt.Fprintln(errw, errorStyle.Render("failed")+" "+err.Error())
			}
			if o == nil || o.Result.Status != graph.StatusCompleted {
				failed++
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, failed
}

// expandInputs resolves files and directories into a list of CSV files.
func expandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := intake.ListCSV(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}
