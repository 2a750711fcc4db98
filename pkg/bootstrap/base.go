package bootstrap

import (
	"context"
	"fmt"

	"smssim/internal/config"
	"smssim/internal/logger"
	"smssim/internal/queue"
	"smssim/pkg/logging"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Broker queue.Broker
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker connects to the configured queue broker and verifies it is
// reachable. A failure here is a startup error.
func (b *Base) InitBroker(ctx context.Context, serviceName string) error {
	broker, err := queue.New(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}

	if err := broker.Ping(ctx); err != nil {
		_ = broker.Close()
		return fmt.Errorf("failed to reach broker: %w", err)
	}

	b.Broker = broker
	b.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Broker connected",
		"type", b.Config.Broker.Type,
		"queue", b.Config.Broker.QueueName,
	)
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Broker != nil {
		if err := b.Broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
