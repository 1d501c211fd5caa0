package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tally/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zapLogger, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = zapLogger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application := app.New(cfg, logger)
			if err := application.Start(ctx); err != nil {
				logger.WithError(err).Error("failed to start dependencies")
				return err
			}

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           application.Handler(),
				ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Infof("Listening on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
				logger.Info("Shutdown signal received")
			case err := <-serveErr:
				if err != nil {
					logger.WithError(err).Error("HTTP server stopped")
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
			defer cancel()

			shutdownErr := server.Shutdown(shutdownCtx)
			if err := application.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("failed to stop dependencies cleanly")
			}
			return shutdownErr
		},
	}
}
