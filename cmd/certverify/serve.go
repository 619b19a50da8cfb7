package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"certverify-backend/internal/interfaces/router"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			app, res, err := router.CreateApp(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Close(); err != nil {
					log.Warn().Err(err).Msg("closing resources")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = res.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("startup check: %w", err)
			}
			log.Info().Bool("redis", res.Rdb != nil).Bool("ledger", cfg.Ledger.Enabled).Msg("backends connected")

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
				errCh <- app.Listen(":" + cfg.Port)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down")
			return app.ShutdownWithTimeout(shutdownTimeout)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}
