package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRenderCmd(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render HASH...",
		Short: "Render nodes as an SVG graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer closeApp(app)

			ctx := cmd.Context()
			svg, err := app.Backend.Render(ctx, args)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(svg)
				return err
			}
			if err := os.WriteFile(output, svg, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			g.logger.Info("Graph written", "file", output, "bytes", len(svg))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the SVG to a file instead of stdout")
	return cmd
}
