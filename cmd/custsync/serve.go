package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"custsync/internal/api"
	"custsync/pkg/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface",
	Long: `Run the HTTP control surface and the background job runner.

On startup, jobs left pending or running by a previous process are marked
failed so their collections can be started or resumed again.

Endpoints:
  POST   /api/v1/collections/:collection/jobs
  GET    /api/v1/collections/:collection/jobs
  GET    /api/v1/collections/:collection/status
  POST   /api/v1/collections/:collection/materialize
  DELETE /api/v1/collections/:collection/records
  POST   /api/v1/jobs/:id/resume
  POST   /api/v1/jobs/:id/cancel
  GET    /healthz
  GET    /metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, map[string]interface{}{"addr": serveAddr})
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.coordinator.Recover(ctx); err != nil {
		return err
	}

	server := api.NewServer(a.coordinator, a.log)
	logger.LogComponentStart(a.log, "api", map[string]interface{}{"addr": a.cfg.Server.Addr})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(a.cfg.Server.Addr)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.LogComponentStop(a.log, "api", "signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
