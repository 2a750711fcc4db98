package producer

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"smssim/internal/logger"
	"smssim/internal/queue"
	"smssim/pkg/metrics"
)

type Producer struct {
	publisher queue.Publisher
	generator *Generator
	queueName string
	limiter   *rate.Limiter
	logger    logger.Logger
}

// New returns a producer publishing to queueName. A positive ratePerSecond
// paces publishing; zero publishes as fast as the broker confirms.
func New(publisher queue.Publisher, generator *Generator, queueName string, ratePerSecond float64, log logger.Logger) *Producer {
	p := &Producer{
		publisher: publisher,
		generator: generator,
		queueName: queueName,
		logger:    log,
	}
	if ratePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return p
}

// Produce enqueues n generated items and returns how many were published.
// It stops at the first publish failure.
func (p *Producer) Produce(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return i, err
			}
		}

		item := p.generator.Next()
		if err := p.publisher.Enqueue(ctx, p.queueName, item); err != nil {
			metrics.IncProducerMessages("failed")
			return i, fmt.Errorf("failed to enqueue message %d: %w", i+1, err)
		}

		metrics.IncProducerMessages("published")
		p.logger.InfowCtx(ctx, "Produced message",
			"phone_number", item.PhoneNumber,
			"queue", p.queueName,
		)
	}

	return n, nil
}
