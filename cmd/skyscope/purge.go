package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/skyscope/pkg/purge"
	"github.com/spf13/cobra"
)

func newPurgeCmd(g *globals) *cobra.Command {
	var (
		yes         bool
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "purge PATH...",
		Short: "Delete backend resources in bulk",
		Long: `Sends DELETE for every PATH, resolved against the backend URL.
Without --yes only the selection step runs and nothing is deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer closeApp(app)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sel := purge.NewSelection(app.Backend, args,
				purge.WithLogger(g.logger),
				purge.WithParallelism(parallelism),
			)

			// The first press on an unchecked selection selects everything.
			if _, _, err := sel.Press(ctx); err != nil {
				return err
			}
			if !yes {
				for _, p := range sel.Checked() {
					fmt.Fprintf(out, "  %s\n", p)
				}
				fmt.Fprintf(out, "%d selected. Re-run with --yes to %s.\n", sel.CheckedCount(), strings.ToLower(sel.Label()))
				return nil
			}

			_, report, err := sel.Press(ctx)
			for _, p := range report.Deleted {
				fmt.Fprintf(out, "deleted %s\n", p)
			}
			for _, f := range report.Failed {
				fmt.Fprintf(out, "failed  %s: %v\n", f.Path, f.Err)
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	cmd.Flags().IntVar(&parallelism, "parallelism", purge.DefaultParallelism, "Concurrent DELETE requests")
	return cmd
}
