package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"datanerd/internal/config"
	"datanerd/internal/store"
	"datanerd/internal/table"
)

func (a *app) newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <file.csv>",
		Short: "Print the data profile of a CSV file without running an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := table.LoadCSV(args[0])
			if err != nil {
				return err
			}
			sum, err := table.Profile(t)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sum.Text())
			return nil
		},
	}
}

func (a *app) newRunsCmd() *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.cfg.Store.DatabasePath)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no runs archived yet"))
				return nil
			}
			tbl := ltable.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(dimStyle).
				Headers("RUN", "DATASET", "STATUS", "TASKS", "FAILED", "STARTED", "DURATION")
			for _, r := range recs {
				tbl.Row(r.ID, r.Dataset, r.Status,
					fmt.Sprintf("%d/%d", r.Completed, r.Planned),
					fmt.Sprint(r.Failures),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Duration().Round(time.Millisecond).String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 = all)")

	var render bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run and its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.cfg.Store.DatabasePath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			rec, err := s.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := s.Results(ctx, rec.ID)
			if err != nil {
				return err
			}
			failures, err := s.Failures(ctx, rec.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render("run "+rec.ID), rec.Dataset)
			fmt.Fprintf(out, "status:   %s\n", rec.Status)
			fmt.Fprintf(out, "steps:    %d\n", rec.Steps)
			fmt.Fprintf(out, "started:  %s (%s)\n", rec.StartedAt.Local().Format(time.RFC3339), rec.Duration().Round(time.Millisecond))
			if rec.Error != "" {
				fmt.Fprintf(out, "error:    %s\n", rec.Error)
			}
			if rec.RunDir != "" {
				fmt.Fprintf(out, "run dir:  %s\n", rec.RunDir)
			}
			fmt.Fprintln(out)
			for _, r := range results {
				fmt.Fprintf(out, "  %s task %d %s (%d attempt(s), %d chart(s))\n",
					okStyle.Render("✓"), r.TaskIndex+1, r.TaskType, r.Attempts, r.Charts)
			}
			for _, f := range failures {
				fmt.Fprintf(out, "  %s task %d attempt %d: %s: %s\n",
					errorStyle.Render("✗"), f.TaskIndex+1, f.Attempt, f.Kind, firstLine(f.Message))
			}
			fmt.Fprintln(out)

			report := rec.Report
			if render {
				if r, err := renderMarkdown(report, 100); err == nil {
					report = r
				}
			}
			fmt.Fprintln(out, report)
			return nil
		},
	}
	show.Flags().BoolVar(&render, "render", false, "Render the report as styled markdown")

	runs.AddCommand(list, show)
	return runs
}

func (a *app) newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration (.yaml or .toml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.flags.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote "+path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}

func (a *app) newSampleCmd() *cobra.Command {
	var (
		rows int
		seed int64
		out  string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a synthetic customer dataset for trying datanerd out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows < 1 {
				return fmt.Errorf("--rows must be at least 1")
			}
			t := table.SampleCustomers(rows, seed)
			if out == "" || out == "-" {
				return table.WriteCSV(cmd.OutOrStdout(), t)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := table.WriteCSV(f, t); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", rows, out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 1000, "Number of rows")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}
