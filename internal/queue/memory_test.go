package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smssim/internal/config"
	"smssim/internal/logger"
	apperrors "smssim/pkg/errors"
	"smssim/pkg/models"
)

const testQueue = "sms_queue"

var errStop = errors.New("stop")

func item(n int) models.WorkItem {
	return models.WorkItem{PhoneNumber: "+100000000" + string(rune('0'+n)), Message: "msg"}
}

func TestMemoryBroker_FIFO(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Enqueue(ctx, testQueue, item(i)))
	}

	var got []string
	err := b.Consume(ctx, testQueue, 1, func(ctx context.Context, d Delivery) error {
		wi, err := models.DecodeWorkItem(d.Body())
		require.NoError(t, err)
		got = append(got, wi.PhoneNumber)
		require.NoError(t, d.Ack(ctx))
		if len(got) == 3 {
			return errStop
		}
		return nil
	})

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []string{item(0).PhoneNumber, item(1).PhoneNumber, item(2).PhoneNumber}, got)
	assert.Equal(t, 3, b.Counts().Acked)
	assert.Equal(t, 0, b.Len(testQueue))
}

func TestMemoryBroker_NackDiscards(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	require.NoError(t, b.Enqueue(ctx, testQueue, item(1)))

	err := b.Consume(ctx, testQueue, 1, func(ctx context.Context, d Delivery) error {
		require.NoError(t, d.Nack(ctx, false))
		return errStop
	})

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 0, b.Len(testQueue))
	assert.Equal(t, MemoryCounts{Published: 1, Discarded: 1}, b.Counts())
}

func TestMemoryBroker_NackRequeueRedelivers(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	require.NoError(t, b.Enqueue(ctx, testQueue, item(1)))
	require.NoError(t, b.Enqueue(ctx, testQueue, item(2)))

	var seen []string
	err := b.Consume(ctx, testQueue, 1, func(ctx context.Context, d Delivery) error {
		wi, _ := models.DecodeWorkItem(d.Body())
		seen = append(seen, wi.PhoneNumber)
		if len(seen) == 1 {
			return d.Nack(ctx, true)
		}
		require.NoError(t, d.Ack(ctx))
		if len(seen) == 3 {
			return errStop
		}
		return nil
	})

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []string{item(1).PhoneNumber, item(1).PhoneNumber, item(2).PhoneNumber}, seen)
	assert.Equal(t, 1, b.Counts().Requeued)
}

func TestMemoryBroker_DoubleSettleIsLocal(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	require.NoError(t, b.Enqueue(ctx, testQueue, item(1)))

	_ = b.Consume(ctx, testQueue, 1, func(ctx context.Context, d Delivery) error {
		require.NoError(t, d.Ack(ctx))
		err := d.Nack(ctx, false)
		assert.True(t, errors.Is(err, ErrAlreadySettled))
		assert.ErrorIs(t, d.Ack(ctx), ErrAlreadySettled)
		return errStop
	})

	assert.Equal(t, MemoryCounts{Published: 1, Acked: 1}, b.Counts())
}

func TestMemoryBroker_CancelReclaimsUnsettled(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Enqueue(context.Background(), testQueue, item(1)))

	ctx, cancel := context.WithCancel(context.Background())
	err := b.Consume(ctx, testQueue, 1, func(ctx context.Context, d Delivery) error {
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.Len(testQueue))
	assert.Equal(t, 0, b.Counts().Acked)
}

func TestMemoryBroker_UnsettledHoldsNextDelivery(t *testing.T) {
	b := NewMemoryBroker()
	for i := 1; i <= 2; i++ {
		require.NoError(t, b.Enqueue(context.Background(), testQueue, item(i)))
	}

	var calls atomic.Int32
	held := make(chan Delivery, 1)
	done := make(chan error, 1)
	go func() {
		done <- b.Consume(context.Background(), testQueue, 1, func(ctx context.Context, d Delivery) error {
			if calls.Add(1) == 1 {
				held <- d
				return nil
			}
			assert.NoError(t, d.Ack(ctx))
			return errStop
		})
	}()

	var first Delivery
	select {
	case first = <-held:
	case <-time.After(time.Second):
		t.Fatal("first delivery never arrived")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "second item delivered while the first is unsettled")
	assert.Equal(t, 1, b.Len(testQueue))

	require.NoError(t, first.Ack(context.Background()))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStop)
	case <-time.After(time.Second):
		t.Fatal("consumer did not resume after settlement")
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, b.Counts().Acked)
}

func TestMemoryBroker_PrefetchWindow(t *testing.T) {
	b := NewMemoryBroker()
	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Enqueue(context.Background(), testQueue, item(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- b.Consume(ctx, testQueue, 2, func(ctx context.Context, d Delivery) error {
			calls.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 3, b.Len(testQueue), "unsettled deliveries go back on the queue")
}

func TestMemoryBroker_BlocksUntilPublish(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	delivered := make(chan string, 1)
	go func() {
		_ = b.Consume(ctx, testQueue, 1, func(ctx context.Context, d Delivery) error {
			delivered <- d.ID()
			_ = d.Ack(ctx)
			return errStop
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Enqueue(ctx, testQueue, item(1)))

	select {
	case id := <-delivered:
		assert.NotEmpty(t, id)
	case <-ctx.Done():
		t.Fatal("delivery not received")
	}
}

func TestMemoryBroker_CloseIsConnectionLoss(t *testing.T) {
	b := NewMemoryBroker()
	done := make(chan error, 1)

	go func() {
		done <- b.Consume(context.Background(), testQueue, 1, func(ctx context.Context, d Delivery) error {
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionLost)
		var appErr *apperrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.True(t, appErr.IsFatal())
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop on close")
	}

	assert.ErrorIs(t, b.Enqueue(context.Background(), testQueue, item(1)), ErrUnavailable)
	assert.Error(t, b.Ping(context.Background()))
}

func TestMemoryBroker_QueuesAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	require.NoError(t, b.Enqueue(ctx, "a", item(1)))
	require.NoError(t, b.PublishRaw(ctx, "b", []byte("raw")))

	assert.Equal(t, 1, b.Len("a"))
	assert.Equal(t, 1, b.Len("b"))
}

func TestDialURL(t *testing.T) {
	uri, err := amqp.ParseURI(dialURL(config.RabbitMQConfig{Host: "rabbit", Port: 5673, User: "u", Password: "p", Vhost: "sms"}))
	require.NoError(t, err)
	assert.Equal(t, "rabbit", uri.Host)
	assert.Equal(t, 5673, uri.Port)
	assert.Equal(t, "u", uri.Username)
	assert.Equal(t, "p", uri.Password)
	assert.Equal(t, "sms", uri.Vhost)

	uri, err = amqp.ParseURI(dialURL(config.RabbitMQConfig{Host: "rabbit", User: "guest", Password: "guest"}))
	require.NoError(t, err)
	assert.Equal(t, 5672, uri.Port)
	assert.Equal(t, "/", uri.Vhost)

	assert.Equal(t, "amqp://x:y@z:1/", dialURL(config.RabbitMQConfig{URL: "amqp://x:y@z:1/", Host: "ignored"}))
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.BrokerConfig{Type: "nats"}, logger.NopLogger())
	assert.Error(t, err)
}
