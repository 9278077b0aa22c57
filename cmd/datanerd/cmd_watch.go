package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"datanerd/internal/intake"
)

func (a *app) newWatchCmd() *cobra.Command {
	var (
		rf       runFlags
		parallel int
		debounce time.Duration
		existing bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Analyze every CSV file dropped into a directory",
		Long: `Watches a directory and runs one analysis per CSV file once the file has
stopped changing. Runs until interrupted.`,
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

			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			handler := func(ctx context.Context, path string) error {
				o, err := p.analyze(ctx, path, nil)
				if o != nil {
					fmt.Fprintln(stdout, statusLine(o))
				}
				if err != nil {
					fmt.Fprintln(stderr, errorStyle.Render("failed")+" "+err.Error())
				}
				return err
			}

			w, err := intake.New(args[0], handler, intake.Options{
				Debounce:        debounce,
				Parallel:        parallel,
				ProcessExisting: existing,
			})
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				w.Stop()
				return err
			}
			fmt.Fprintln(stderr, titleStyle.Render("watching")+" "+w.Dir()+dimStyle.Render("  (ctrl+c to stop)"))

			<-ctx.Done()
			w.Stop()

			s := w.Stats()
			fmt.Fprintf(stderr, "handled %d file(s), %d failed\n", s.Handled, s.Failed)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "Files analyzed at the same time")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a file is analyzed")
	cmd.Flags().BoolVar(&existing, "existing", false, "Also analyze CSV files already in the directory")
	return cmd
}
