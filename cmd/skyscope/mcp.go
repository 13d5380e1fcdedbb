package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/skyscope/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(g *globals) *cobra.Command {
	var ssePort int

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Exposes the explorer to AI agents as MCP tools: find_nodes, toggle_node,
get_view and render_graph.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP when --sse-port is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer closeApp(app)

			srv := mcp.NewServer(app.Views,
				mcp.WithLogger(g.logger),
				mcp.WithTimeout(app.Config.Backend.Timeout+app.Config.Scheduling.RenderDelay),
			)

			if ssePort == 0 {
				// Ensure logs don't corrupt JSON-RPC on Stdout
				log.SetOutput(os.Stderr)
				g.logger.Info("Starting skyscope MCP Server (Stdio)")
				return srv.ServeStdio()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, ssePort); err != nil {
				return err
			}
			g.logger.Info("MCP Server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().IntVar(&ssePort, "sse-port", 0, "Serve the SSE transport on this port instead of stdio")
	return cmd
}
