package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"smssim/internal/constants"
	"smssim/internal/logger"
	"smssim/internal/queue"
	"smssim/internal/stats"
	apperrors "smssim/pkg/errors"
	"smssim/pkg/logging"
	"smssim/pkg/metrics"
	"smssim/pkg/models"
	"smssim/pkg/tracing"
)

const (
	statusSent      = "sent"
	statusFailed    = "failed"
	statusMalformed = "malformed"

	statsUpdateTimeout = 5 * time.Second
)

// Worker drains one queue, one item at a time. Each item is delayed and
// then either acked (success) or discarded (failure), and the outcome is
// folded into the shared stats.
type Worker struct {
	id        string
	queueName string
	consumer  queue.Consumer
	store     stats.Store
	sampler   Sampler
	logger    logger.Logger
	policy    string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Worker)

// WithID overrides the generated worker label.
func WithID(id string) Option {
	return func(w *Worker) { w.id = id }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithSleeper replaces the timed wait used for the simulated delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Worker) { w.sleep = sleep }
}

// WithPolicyLabel tags stats metrics with the store's update policy.
func WithPolicyLabel(policy string) Option {
	return func(w *Worker) { w.policy = policy }
}

func New(queueName string, consumer queue.Consumer, store stats.Store, sampler Sampler, log logger.Logger, opts ...Option) *Worker {
	w := &Worker{
		id:        NewID(),
		queueName: queueName,
		consumer:  consumer,
		store:     store,
		sampler:   sampler,
		logger:    log,
		policy:    constants.UpdatePolicyReadModifyWrite,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewID returns a short label identifying a worker in logs.
func NewID() string {
	return "sender-" + uuid.NewString()[:8]
}

func (w *Worker) ID() string {
	return w.id
}

// Run consumes until ctx is cancelled (returning nil) or the queue
// connection fails.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logging.WithWorkerID(ctx, w.id)

	w.logger.InfowCtx(ctx, "Sender is waiting for messages",
		"queue", w.queueName,
		"prefetch", constants.WorkerPrefetch,
	)

	err := w.consumer.Consume(ctx, w.queueName, constants.WorkerPrefetch, w.Handle)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		w.logger.InfowCtx(ctx, "Sender stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker %s: %w", w.id, err)
	}
	return nil
}

// Handle processes one delivery. It returns an error only when the
// delivery could not be settled, which ends the consume loop.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) error {
	metrics.SendersBusy.Inc()
	defer metrics.SendersBusy.Dec()

	ctx, span := tracing.GetTracer("smssim-sender").Start(ctx, "sms.send")
	defer span.End()

	item, err := models.DecodeWorkItem(d.Body())
	if err != nil {
		w.logger.WarnwCtx(ctx, "Discarding malformed message",
			"error", err,
			"size", len(d.Body()),
		)
		span.SetStatus(codes.Error, "malformed")
		return w.settle(ctx, d, statusMalformed, 0)
	}

	span.SetAttributes(attribute.String("sms.phone_number", item.PhoneNumber))

	start := w.now()
	failed, err := w.simulate(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down mid-send: leave the delivery unsettled so the
		// broker hands it to another worker.
		w.logger.InfowCtx(ctx, "Interrupted before settling message", "phone_number", item.PhoneNumber)
		return nil
	}
	elapsed := w.now().Sub(start)

	switch {
	case err != nil:
		w.logger.ErrorwCtx(ctx, "Send simulation failed",
			"error", err,
			"phone_number", item.PhoneNumber,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "simulation error")
		return w.settle(ctx, d, statusFailed, elapsed)
	case failed:
		w.logger.InfowCtx(ctx, "Failed to send message", "phone_number", item.PhoneNumber)
		span.SetStatus(codes.Error, "send failed")
		return w.settle(ctx, d, statusFailed, elapsed)
	default:
		w.logger.InfowCtx(ctx, "Successfully sent message",
			"phone_number", item.PhoneNumber,
			"elapsed_seconds", elapsed.Seconds(),
		)
		return w.settle(ctx, d, statusSent, elapsed)
	}
}

func (w *Worker) simulate(ctx context.Context) (failed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
		}
	}()

	if err := w.sleep(ctx, w.sampler.Delay()); err != nil {
		return false, err
	}
	return w.sampler.Fail(), nil
}

// settle acks or discards d and then records the outcome. Only a failed
// ack or nack is returned; a failed stats update is logged and dropped.
func (w *Worker) settle(ctx context.Context, d queue.Delivery, status string, elapsed time.Duration) error {
	var delta stats.Delta
	if status == statusSent {
		if err := d.Ack(ctx); err != nil {
			return fmt.Errorf("failed to ack message: %w", err)
		}
		delta = stats.Success(elapsed)
	} else {
		if err := d.Nack(ctx, false); err != nil {
			return fmt.Errorf("failed to nack message: %w", err)
		}
		delta = stats.Failure()
	}

	metrics.IncSMSMessages(status)
	if status != statusMalformed {
		metrics.ObserveSMSDuration(elapsed, status)
	}

	w.record(ctx, delta)
	return nil
}

func (w *Worker) record(ctx context.Context, delta stats.Delta) {
	// The item is already settled, so its outcome is recorded even if the
	// worker is being stopped.
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsUpdateTimeout)
	defer cancel()

	start := time.Now()
	err := w.store.Update(updateCtx, delta)
	metrics.ObserveStatsUpdateDuration(w.policy, time.Since(start))

	if err != nil {
		metrics.IncStatsUpdate(w.policy, "error")
		w.logger.ErrorwCtx(ctx, "Failed to update stats",
			"error", err,
			"sent_delta", delta.Sent,
			"failed_delta", delta.Failed,
		)
		return
	}
	metrics.IncStatsUpdate(w.policy, "ok")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
