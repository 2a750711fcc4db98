package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"smssim/internal/config"
	"smssim/internal/constants"
	"smssim/internal/logger"
	"smssim/pkg/logging"
	"smssim/pkg/metrics"
	"smssim/pkg/models"
	"smssim/pkg/tracing"
)

const brokerRabbitMQ = constants.BrokerTypeRabbitMQ

// RabbitMQ holds one AMQP connection. Publishing goes through a single
// confirm-mode channel; every Consume call opens its own channel so that
// prefetch applies per consumer.
type RabbitMQ struct {
	conn   *amqp.Connection
	logger logger.Logger

	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
}

func NewRabbitMQ(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQ, error) {
	url := dialURL(cfg)

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Locale:    "en_US",
		Dial:      dialer.Dial,
	})
	if err != nil {
		return nil, ErrUnavailable.WithCause(err)
	}

	r := &RabbitMQ{
		conn:     conn,
		logger:   log,
		declared: make(map[string]bool),
	}

	go r.watchConnection()

	return r, nil
}

func dialURL(cfg config.RabbitMQConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	port := cfg.Port
	if port == 0 {
		port = 5672
	}
	vhost := cfg.Vhost
	if vhost == "" {
		vhost = "/"
	}

	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.Host,
		Port:     port,
		Username: cfg.User,
		Password: cfg.Password,
		Vhost:    vhost,
	}
	return uri.String()
}

func (r *RabbitMQ) watchConnection() {
	amqpErr, ok := <-r.conn.NotifyClose(make(chan *amqp.Error, 1))
	if ok && amqpErr != nil {
		r.logger.Errorw("RabbitMQ connection closed",
			"code", amqpErr.Code,
			"reason", amqpErr.Reason,
			"server", amqpErr.Server,
		)
	}
}

func declareQueue(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// publishChannel returns the confirm-mode channel, opening it on first use.
// Callers hold r.pubMu.
func (r *RabbitMQ) publishChannel(queueName string) (*amqp.Channel, error) {
	if r.pubCh == nil || r.pubCh.IsClosed() {
		ch, err := r.conn.Channel()
		if err != nil {
			return nil, err
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, err
		}
		r.pubCh = ch
		r.declared = make(map[string]bool)
	}

	if !r.declared[queueName] {
		if err := declareQueue(r.pubCh, queueName); err != nil {
			return nil, err
		}
		r.declared[queueName] = true
	}

	return r.pubCh, nil
}

func (r *RabbitMQ) Enqueue(ctx context.Context, queueName string, item models.WorkItem) error {
	body, err := item.Encode()
	if err != nil {
		return err
	}
	return r.publish(ctx, queueName, body)
}

func (r *RabbitMQ) publish(ctx context.Context, queueName string, body []byte) error {
	start := time.Now()

	r.pubMu.Lock()
	ch, err := r.publishChannel(queueName)
	if err != nil {
		r.pubMu.Unlock()
		return ErrUnavailable.WithCause(err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",        // default exchange routes by queue name
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    start,
			Headers:      tracing.InjectAMQPHeaders(ctx, nil),
			Body:         body,
		},
	)
	r.pubMu.Unlock()
	if err != nil {
		return ErrUnavailable.WithCause(err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return ErrUnavailable.WithCause(err)
	}
	if !acked {
		return ErrUnavailable.WithDetail("message", fmt.Sprintf("broker rejected publish to %s", queueName))
	}

	metrics.IncQueuePublished(brokerRabbitMQ, queueName, len(body))
	metrics.ObserveQueuePublishDuration(brokerRabbitMQ, queueName, time.Since(start))
	return nil
}

func (r *RabbitMQ) Consume(ctx context.Context, queueName string, prefetch int, handler HandlerFunc) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return ErrConnectionLost.WithCause(err)
	}
	defer ch.Close()

	if err := declareQueue(ch, queueName); err != nil {
		return ErrUnavailable.WithCause(err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return ErrUnavailable.WithCause(err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	tag := queueName + "-" + uuid.NewString()[:8]
	deliveries, err := ch.ConsumeWithContext(ctx,
		queueName,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return ErrUnavailable.WithCause(err)
	}

	r.logger.InfowCtx(ctx, "Started consuming",
		"queue", queueName,
		"consumer_tag", tag,
		"prefetch", prefetch,
	)

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			r.logger.InfowCtx(ctx, "Stopped consuming",
				"queue", queueName,
				"reason", "context canceled",
			)
			return ctx.Err()

		case amqpErr := <-closed:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if amqpErr != nil {
				return ErrConnectionLost.WithCause(amqpErr)
			}
			return ErrConnectionLost

		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrConnectionLost
			}

			metrics.IncQueueConsumed(brokerRabbitMQ, queueName, len(d.Body))

			delivery := &rabbitDelivery{
				d:     d,
				queue: queueName,
			}

			msgCtx, span := tracing.StartSpanFromAMQPDelivery(ctx, "amqp.consume", d.Headers)
			msgCtx = logging.WithMessageID(msgCtx, delivery.ID())
			err := handler(msgCtx, delivery)
			span.End()

			if err != nil {
				return err
			}
		}
	}
}

func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return ErrUnavailable.WithDetail("message", "connection closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.pubMu.Lock()
	if r.pubCh != nil {
		_ = r.pubCh.Close()
		r.pubCh = nil
	}
	r.pubMu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

type rabbitDelivery struct {
	d     amqp.Delivery
	queue string
	guard settleGuard
}

func (d *rabbitDelivery) ID() string {
	return strconv.FormatUint(d.d.DeliveryTag, 10)
}

func (d *rabbitDelivery) Body() []byte {
	return d.d.Body
}

func (d *rabbitDelivery) Ack(ctx context.Context) error {
	if err := d.guard.claim(); err != nil {
		return err
	}
	if err := d.d.Ack(false); err != nil {
		return ErrConnectionLost.WithCause(err)
	}
	metrics.IncQueueSettled(brokerRabbitMQ, d.queue, dispositionAck)
	return nil
}

func (d *rabbitDelivery) Nack(ctx context.Context, requeue bool) error {
	if err := d.guard.claim(); err != nil {
		return err
	}
	if err := d.d.Nack(false, requeue); err != nil {
		return ErrConnectionLost.WithCause(err)
	}
	metrics.IncQueueSettled(brokerRabbitMQ, d.queue, disposition(requeue))
	return nil
}
