package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"smssim/internal/config"
	"smssim/internal/constants"
	"smssim/internal/logger"
	"smssim/internal/producer"
	"smssim/pkg/bootstrap"
	"smssim/pkg/logging"
	"smssim/pkg/metrics"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "producer <num_messages>",
		Short: "Enqueue generated SMS work items",
		Long:  "Producer generates work items with random phone numbers and messages and publishes them to the work queue",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env vars are always read)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseCount(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("num_messages must be a non-negative integer, got %q", arg)
	}
	return n, nil
}

func run(cmd *cobra.Command, args []string) error {
	earlyLog := logging.NewEarlyLog()

	n, err := parseCount(args[0])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(configFile, config.RoleProducer)
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
	ctx = logging.WithServiceName(ctx, constants.ServiceNameProducer)

	metrics.RegisterProducerMetrics()
	metrics.RegisterQueueMetrics()

	base := bootstrap.NewBase(cfg, log)
	if err := base.InitBroker(ctx, constants.ServiceNameProducer); err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize broker", "error", err)
		return err
	}
	defer func() {
		if err := base.Shutdown(context.Background(), nil); err != nil {
			log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
		}
	}()

	gen := producer.NewGenerator(cfg.Producer.MessageLength, 0)
	p := producer.New(base.Broker, gen, cfg.Broker.QueueName, cfg.Producer.RatePerSecond, log)

	published, err := p.Produce(ctx, n)
	if err != nil {
		if ctx.Err() != nil {
			log.InfowCtx(ctx, "Producer interrupted", "published", published, "requested", n)
			return nil
		}
		log.ErrorwCtx(ctx, "Producer failed", "error", err, "published", published, "requested", n)
		return err
	}

	log.InfowCtx(ctx, "Producer finished", "published", published, "queue", cfg.Broker.QueueName)
	return nil
}
