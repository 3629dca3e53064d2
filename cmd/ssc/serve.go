package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartsuite-tools/ssc/internal/logging"
	"github.com/smartsuite-tools/ssc/internal/rpc"
	"github.com/smartsuite-tools/ssc/internal/storage"
	"github.com/smartsuite-tools/ssc/internal/telemetry"
	"github.com/smartsuite-tools/ssc/internal/toon"
	"github.com/smartsuite-tools/ssc/internal/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.New(cfg.Debug)

		if err := telemetry.Init(ctx, "ssc", Version); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			telemetry.Shutdown(shutdownCtx)
		}()

		store, err := storage.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open cache store: %w", err)
		}
		defer store.Close()

		loc, err := toon.ResolveLocation(cfg.Timezone)
		if err != nil {
			return err
		}

		opts := rpc.Options{
			Location: loc,
			Logger:   log,
			Metrics:  telemetry.NewCacheMetrics(),
		}
		if cfg.HasUpstream() {
			opts.Upstream = upstream.New(upstream.Config{
				BaseURL:   cfg.BaseURL,
				APIKey:    cfg.APIKey,
				AccountID: cfg.AccountID,
			}, log)
		} else {
			log.Warn().Msg("no upstream credentials; cache misses will surface to clients")
		}

		done := make(chan struct{})
		opts.OnShutdown = func() { close(done) }

		srv := rpc.NewServer(store, cfg.Socket, opts)
		if err := srv.Start(); err != nil {
			return err
		}
		log.Info().Str("db", cfg.DBPath).Str("socket", cfg.Socket).Msg("cache server started")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
			log.Info().Msg("signal received, shutting down")
			return srv.Stop()
		case <-done:
			return nil
		}
	},
}
