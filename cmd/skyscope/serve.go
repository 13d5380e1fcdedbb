package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/skyscope"
	"github.com/aretw0/skyscope/internal/telemetry"
	skyhttp "github.com/aretw0/skyscope/pkg/adapters/http"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Serves the explorer over HTTP: views, search, toggle, graph rendering, server-sent events and purge.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				g.cfg.HTTP.Port = port
			}

			registry := telemetry.NewRegistry()
			app, err := g.app(skyscope.WithRegistry(registry))
			if err != nil {
				return err
			}
			defer closeApp(app)

			handler, err := skyhttp.NewHandler(app.Views, app.Backend,
				skyhttp.WithLogger(g.logger),
				skyhttp.WithRegistry(registry),
			)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", g.cfg.HTTP.Port),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Channel to listen for errors coming from the listener.
			serverErrors := make(chan error, 1)
			go func() {
				g.logger.Info("Starting skyscope server", "address", srv.Addr, "backend", app.Backend.BaseURL())
				serverErrors <- srv.ListenAndServe()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				g.logger.Info("Start shutdown")

				// Give outstanding requests a deadline for completion.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					g.logger.Warn("Graceful shutdown did not complete", "err", err)
					return srv.Close()
				}
				g.logger.Info("skyscope server stopped gracefully")
				return nil
			}
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on, overrides http.port")
	return cmd
}
