package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/relief-capture/framegrid"
	"github.com/e7canasta/relief-capture/internal/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cfg.HTTP.Listen == "" {
		return fmt.Errorf("grid-capture: http.listen is required for serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	api, err := httpapi.New(httpapi.Options{
		Factory: func(onImageReady func(string), onClose func()) (*framegrid.Component, error) {
			return framegrid.New(a.options(onImageReady, onClose))
		},
		Preview: a.preview,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("grid-capture: http server listening",
			"addr", cfg.HTTP.Listen,
			"instance_id", cfg.InstanceID,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("grid-capture: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("grid-capture: shutting down", "timeout", cfg.ShutdownTimeout())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		if err := api.Close(); err != nil {
			slog.Warn("grid-capture: closing capture", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
