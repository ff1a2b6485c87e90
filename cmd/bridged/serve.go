package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"valuebridge/internal/api"
	"valuebridge/internal/config"
)

// runServe starts the HTTP transfer API without the watchers or the
// settlement pipeline, for deployments that scale the front door
// independently of the facilitator.
func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	server := api.NewServer(svc.transfers, svc.resolve, svc.balances, svc.registryGatherer, logger)

	logger.Info("api start", zap.String("listen", cfg.ListenAddr))
	err = serveHTTP(ctx, cfg.ListenAddr, server.Handler())
	svc.transfers.Wait()
	return err
}
