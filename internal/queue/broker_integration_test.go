//go:build integration

package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	rabbitmqmodule "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"smssim/internal/config"
	"smssim/internal/logger"
	"smssim/pkg/models"
)

func disableRyuk() {
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
}

func setupRabbitMQ(t *testing.T) *RabbitMQ {
	t.Helper()
	disableRyuk()
	ctx := context.Background()

	container, err := rabbitmqmodule.Run(ctx, "rabbitmq:3.13-management-alpine",
		rabbitmqmodule.WithAdminUsername("guest"),
		rabbitmqmodule.WithAdminPassword("guest"),
	)
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	url, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get amqp url: %v", err)
	}

	r, err := NewRabbitMQ(config.RabbitMQConfig{URL: url, Heartbeat: 10 * time.Second, DialTimeout: 10 * time.Second}, logger.NopLogger())
	if err != nil {
		t.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
	})
	return r
}

// drain consumes until handle returns errStop or the timeout passes.
func drain(t *testing.T, b Broker, queueName string, timeout time.Duration, handle HandlerFunc) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return b.Consume(ctx, queueName, 1, handle)
}

func TestRabbitMQ_AckAndDiscard(t *testing.T) {
	r := setupRabbitMQ(t)
	ctx := context.Background()
	queueName := "sms_queue_ack"

	require.NoError(t, r.Ping(ctx))
	require.NoError(t, r.Enqueue(ctx, queueName, item(1)))
	require.NoError(t, r.Enqueue(ctx, queueName, item(2)))

	var seen []models.WorkItem
	err := drain(t, r, queueName, 30*time.Second, func(ctx context.Context, d Delivery) error {
		wi, err := models.DecodeWorkItem(d.Body())
		require.NoError(t, err)
		seen = append(seen, wi)
		if len(seen) == 1 {
			return d.Ack(ctx)
		}
		require.NoError(t, d.Nack(ctx, false))
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, []models.WorkItem{item(1), item(2)}, seen)

	// both settled terminally: nothing is redelivered
	err = drain(t, r, queueName, 2*time.Second, func(ctx context.Context, d Delivery) error {
		t.Errorf("unexpected redelivery of %s", d.Body())
		return errStop
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRabbitMQ_RequeueAndUnsettledRedelivery(t *testing.T) {
	r := setupRabbitMQ(t)
	ctx := context.Background()
	queueName := "sms_queue_requeue"

	require.NoError(t, r.Enqueue(ctx, queueName, item(3)))

	// requeue once, then ack the redelivered copy
	deliveries := 0
	err := drain(t, r, queueName, 30*time.Second, func(ctx context.Context, d Delivery) error {
		deliveries++
		if deliveries == 1 {
			return d.Nack(ctx, true)
		}
		require.NoError(t, d.Ack(ctx))
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, 2, deliveries)

	// an item left unsettled when the consumer stops comes back
	require.NoError(t, r.Enqueue(ctx, queueName, item(4)))

	consumeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = r.Consume(consumeCtx, queueName, 1, func(ctx context.Context, d Delivery) error {
		cancel()
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))

	err = drain(t, r, queueName, 30*time.Second, func(ctx context.Context, d Delivery) error {
		wi, err := models.DecodeWorkItem(d.Body())
		require.NoError(t, err)
		assert.Equal(t, item(4), wi)
		require.NoError(t, d.Ack(ctx))
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
}

func TestRabbitMQ_CloseEndsConsumeAsConnectionLoss(t *testing.T) {
	r := setupRabbitMQ(t)
	done := make(chan error, 1)

	go func() {
		done <- r.Consume(context.Background(), "sms_queue_close", 1, func(ctx context.Context, d Delivery) error {
			return nil
		})
	}()

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop after close")
	}
}

func setupKafka(t *testing.T) *Kafka {
	t.Helper()
	disableRyuk()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("smssim-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	k := NewKafka(config.KafkaConfig{
		Brokers:           brokers,
		GroupID:           "sms-senders-test",
		Partitions:        4,
		ReplicationFactor: 1,
	}, logger.NopLogger())
	t.Cleanup(func() {
		k.Close()
	})
	return k
}

func TestKafka_EnqueueConsumeAck(t *testing.T) {
	k := setupKafka(t)
	ctx := context.Background()
	topic := "sms_queue"

	require.NoError(t, k.Ping(ctx))

	// the first write may race partition leader election
	require.Eventually(t, func() bool {
		return k.Enqueue(ctx, topic, item(1)) == nil
	}, 30*time.Second, time.Second)
	require.NoError(t, k.Enqueue(ctx, topic, item(2)))

	var seen []models.WorkItem
	err := drain(t, k, topic, 60*time.Second, func(ctx context.Context, d Delivery) error {
		wi, err := models.DecodeWorkItem(d.Body())
		require.NoError(t, err)
		seen = append(seen, wi)
		require.NoError(t, d.Ack(ctx))
		assert.ErrorIs(t, d.Ack(ctx), ErrAlreadySettled)
		if len(seen) == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, []models.WorkItem{item(1), item(2)}, seen)
}

func TestKafka_TopicCreatedWithConfiguredPartitions(t *testing.T) {
	k := setupKafka(t)
	ctx := context.Background()
	topic := "sms_queue_partitioned"

	require.Eventually(t, func() bool {
		return k.Enqueue(ctx, topic, item(1)) == nil
	}, 30*time.Second, time.Second)

	conn, err := kafka.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	require.NoError(t, err)
	assert.Len(t, partitions, 4)

	// a second call finds the topic and leaves it alone
	require.NoError(t, k.Enqueue(ctx, topic, item(2)))
}
