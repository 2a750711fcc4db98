package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "smssim/cmd/monitor-service/docs"
	"smssim/internal/config"
	"smssim/internal/constants"
	"smssim/internal/logger"
	"smssim/pkg/logging"
)

var (
	configFile string
)

// @title           SMS Simulator Monitor API
// @version         1.0
// @description     Read-only view of the shared SMS simulation stats

// @host      localhost:8080
// @BasePath  /api/v1

func main() {
	rootCmd := &cobra.Command{
		Use:          "monitor-service",
		Short:        "SMS simulator stats monitor",
		Long:         "Monitor Service periodically reads the shared stats and reports totals and the average time per message",
		RunE:         serveCmd().RunE,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env vars are always read)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the stats monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.Load(configFile, config.RoleMonitor)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceNameMonitor)

			log.InfowCtx(ctx, "Starting Monitor Service",
				"update_interval", cfg.Monitor.UpdateInterval,
				"stats_key", cfg.Stats.Key,
			)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				_ = app.Shutdown(context.Background())
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			runErr := app.Run(ctx)
			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
			}
			if runErr != nil {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(ctx, "Shutdown complete")
			return nil
		},
	}
}
