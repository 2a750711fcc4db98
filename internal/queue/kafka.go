package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"smssim/internal/config"
	"smssim/internal/constants"
	"smssim/internal/logger"
	"smssim/pkg/logging"
	"smssim/pkg/metrics"
	"smssim/pkg/models"
	"smssim/pkg/tracing"
)

const brokerKafka = constants.BrokerTypeKafka

// Kafka maps the queue onto a topic read by one consumer group. A topic has
// no per-message acknowledgment, so every settlement commits the offset;
// requeue republishes the value to the tail before committing.
type Kafka struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer
	logger logger.Logger

	mu      sync.Mutex
	readers map[*kafka.Reader]struct{}
	topics  map[string]bool
}

func NewKafka(cfg config.KafkaConfig, log logger.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &Kafka{
		cfg:     cfg,
		writer:  w,
		logger:  log,
		readers: make(map[*kafka.Reader]struct{}),
		topics:  make(map[string]bool),
	}
}

func (k *Kafka) topicConfig(topic string) kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(k.cfg.Partitions, 1),
		ReplicationFactor: max(k.cfg.ReplicationFactor, 1),
	}
}

// ensureTopic creates topic with the configured partitions before first use,
// so writer auto-creation never leaves it with the broker's default of one.
// An existing topic is left as is; if it has fewer partitions than
// configured only that many workers receive messages.
func (k *Kafka) ensureTopic(ctx context.Context, topic string) error {
	k.mu.Lock()
	done := k.topics[topic]
	k.mu.Unlock()
	if done {
		return nil
	}

	if len(k.cfg.Brokers) == 0 {
		return ErrUnavailable.WithDetail("message", "no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return ErrUnavailable.WithCause(err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return ErrUnavailable.WithCause(fmt.Errorf("failed to find kafka controller: %w", err))
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return ErrUnavailable.WithCause(err)
	}
	defer ctrl.Close()

	want := k.topicConfig(topic)
	if err := ctrl.CreateTopics(want); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return ErrUnavailable.WithCause(fmt.Errorf("failed to create topic %s: %w", topic, err))
	}

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return ErrUnavailable.WithCause(fmt.Errorf("failed to read partitions of %s: %w", topic, err))
	}
	if len(partitions) < want.NumPartitions {
		k.logger.WarnwCtx(ctx, "Topic has fewer partitions than configured, some workers will stay idle",
			"topic", topic,
			"partitions", len(partitions),
			"configured_partitions", want.NumPartitions,
		)
	} else {
		k.logger.InfowCtx(ctx, "Topic ready",
			"topic", topic,
			"partitions", len(partitions),
		)
	}

	k.mu.Lock()
	k.topics[topic] = true
	k.mu.Unlock()
	return nil
}

func (k *Kafka) Enqueue(ctx context.Context, queueName string, item models.WorkItem) error {
	body, err := item.Encode()
	if err != nil {
		return err
	}
	return k.publish(ctx, queueName, body)
}

func (k *Kafka) publish(ctx context.Context, topic string, body []byte) error {
	if err := k.ensureTopic(ctx, topic); err != nil {
		return err
	}

	start := time.Now()

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Value:   body,
		Headers: tracing.InjectKafkaHeaders(ctx, nil),
		Time:    start,
	})
	if err != nil {
		return ErrUnavailable.WithCause(fmt.Errorf("failed to write kafka message: %w", err))
	}

	metrics.IncQueuePublished(brokerKafka, topic, len(body))
	metrics.ObserveQueuePublishDuration(brokerKafka, topic, time.Since(start))
	return nil
}

func (k *Kafka) Consume(ctx context.Context, queueName string, prefetch int, handler HandlerFunc) error {
	if err := k.ensureTopic(ctx, queueName); err != nil {
		return err
	}

	k.logger.InfowCtx(ctx, "Creating Kafka reader",
		"topic", queueName,
		"brokers", k.cfg.Brokers,
		"group_id", k.cfg.GroupID,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:       k.cfg.Brokers,
		GroupID:       k.cfg.GroupID,
		Topic:         queueName,
		QueueCapacity: prefetch,
		MinBytes:      1,
		MaxBytes:      10e6,
	})
	k.track(reader)
	defer func() {
		k.untrack(reader)
		_ = reader.Close()
	}()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.logger.InfowCtx(ctx, "Stopped consuming",
					"topic", queueName,
					"reason", "context canceled",
				)
				return ctx.Err()
			}
			return ErrConnectionLost.WithCause(err)
		}

		metrics.IncQueueConsumed(brokerKafka, queueName, len(m.Value))
		metrics.SetKafkaConsumerLag(queueName, m.HighWaterMark-m.Offset-1)

		delivery := &kafkaDelivery{
			kafka:  k,
			reader: reader,
			msg:    m,
		}

		msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
		msgCtx = logging.WithMessageID(msgCtx, delivery.ID())
		err = handler(msgCtx, delivery)
		span.End()

		if err != nil {
			return err
		}
	}
}

func (k *Kafka) track(r *kafka.Reader) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.readers[r] = struct{}{}
}

func (k *Kafka) untrack(r *kafka.Reader) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.readers, r)
}

func (k *Kafka) Ping(ctx context.Context) error {
	if len(k.cfg.Brokers) == 0 {
		return ErrUnavailable.WithDetail("message", "no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return ErrUnavailable.WithCause(err)
	}
	return conn.Close()
}

// Close stops running readers, which makes their Consume calls return, and
// flushes the writer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	for r := range k.readers {
		_ = r.Close()
	}
	k.mu.Unlock()

	return k.writer.Close()
}

type kafkaDelivery struct {
	kafka  *Kafka
	reader *kafka.Reader
	msg    kafka.Message
	guard  settleGuard
}

func (d *kafkaDelivery) ID() string {
	return strconv.Itoa(d.msg.Partition) + ":" + strconv.FormatInt(d.msg.Offset, 10)
}

func (d *kafkaDelivery) Body() []byte {
	return d.msg.Value
}

func (d *kafkaDelivery) Ack(ctx context.Context) error {
	if err := d.guard.claim(); err != nil {
		return err
	}
	if err := d.commit(ctx); err != nil {
		return err
	}
	metrics.IncQueueSettled(brokerKafka, d.msg.Topic, dispositionAck)
	return nil
}

func (d *kafkaDelivery) Nack(ctx context.Context, requeue bool) error {
	if err := d.guard.claim(); err != nil {
		return err
	}
	if requeue {
		if err := d.kafka.publish(ctx, d.msg.Topic, d.msg.Value); err != nil {
			return err
		}
	}
	if err := d.commit(ctx); err != nil {
		return err
	}
	metrics.IncQueueSettled(brokerKafka, d.msg.Topic, disposition(requeue))
	return nil
}

func (d *kafkaDelivery) commit(ctx context.Context) error {
	if err := d.reader.CommitMessages(ctx, d.msg); err != nil {
		return ErrConnectionLost.WithCause(fmt.Errorf("failed to commit offset: %w", err))
	}
	return nil
}
