package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/skyscope"
	"github.com/aretw0/skyscope/internal/config"
	"github.com/aretw0/skyscope/internal/telemetry"
	"github.com/spf13/cobra"
)

// globals holds the persistent flags and what they resolve to.
type globals struct {
	configPath string
	backend    string
	debug      bool

	cfg      config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "skyscope",
		Short: "skyscope explores a Skyframe dependency graph",
		Long: `skyscope searches the nodes of a Skyframe graph served by a backend,
renders the chosen nodes as SVG and purges backend caches. It runs as a CLI,
an HTTP API or an MCP server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if g.shutdown == nil {
				return nil
			}
			return g.shutdown(context.Background())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "Config file (default "+config.DefaultFile+" if present)")
	flags.StringVar(&g.backend, "backend", "", "Backend base URL, overrides backend.url")
	flags.BoolVar(&g.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(g),
		newFindCmd(g),
		newRenderCmd(g),
		newExploreCmd(g),
		newPurgeCmd(g),
		newMCPCmd(g),
		newVersionCmd(),
	)
	return rootCmd
}

// load resolves config file, env vars and flags, in that order, and starts
// tracing when configured.
func (g *globals) load(ctx context.Context) error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.backend != "" {
		cfg.Backend.URL = g.backend
	}
	if g.debug {
		cfg.Log.Level = "debug"
	}
	g.cfg = cfg
	g.logger = cfg.Logger()

	shutdown, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	g.shutdown = shutdown
	return nil
}

func (g *globals) app(opts ...skyscope.Option) (*skyscope.App, error) {
	opts = append([]skyscope.Option{skyscope.WithLogger(g.logger)}, opts...)
	return skyscope.New(g.cfg, opts...)
}

// closeApp waits for in-flight backend calls before the process exits.
func closeApp(app *skyscope.App) {
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Backend.Timeout)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		app.Logger.Warn("Shutdown incomplete", "err", err)
	}
}
