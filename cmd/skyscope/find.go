package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/skyscope/internal/presentation/tui"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

func newFindCmd(g *globals) *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "find PATTERN",
		Short: "Search the graph once and print the matching nodes",
		Long: `Matches PATTERN against node keys the way SQLite LIKE does: % matches any
run of characters and _ matches exactly one. The search is case-insensitive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := args[0]
			if strings.TrimSpace(pattern) == "" {
				return domain.ErrEmptyPattern
			}

			app, err := g.app()
			if err != nil {
				return err
			}
			defer closeApp(app)

			ctx := cmd.Context()
			ex, err := app.Views.Open(ctx, view)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, app.Config.Backend.Timeout+app.Config.Scheduling.SearchDelay)
			defer cancel()
			ev, err := ex.SearchAndWait(ctx, pattern)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			io.WriteString(out, tui.NewRowPrinter(profileOf(out)).Rows(ev.Rows, ev.NodeCount))
			if shown := len(ev.Rows); shown < ev.Total {
				fmt.Fprintf(out, "showing %d of %d matches\n", shown, ev.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "default", "View the search is recorded in")
	return cmd
}

func profileOf(w io.Writer) termenv.Profile {
	return termenv.NewOutput(w).EnvColorProfile()
}
