package queue

import (
	"context"

	"smssim/pkg/models"
)

// Delivery is one outstanding delivered item. It must be settled exactly
// once, with Ack or Nack.
type Delivery interface {
	// ID identifies the delivery for logging only.
	ID() string
	Body() []byte
	// Ack removes the item from the queue permanently.
	Ack(ctx context.Context) error
	// Nack with requeue=false discards the item permanently; requeue=true
	// hands it back to the broker for redelivery.
	Nack(ctx context.Context, requeue bool) error
}

// HandlerFunc processes one delivery. A non-nil error stops the consume
// loop and is returned from Consume.
type HandlerFunc func(ctx context.Context, d Delivery) error

type Publisher interface {
	// Enqueue appends item to the durable queue and returns once the broker
	// has accepted it.
	Enqueue(ctx context.Context, queueName string, item models.WorkItem) error
	Close() error
}

type Consumer interface {
	// Consume delivers items to handler one at a time, holding at most
	// prefetch unacknowledged items. It blocks until ctx is cancelled
	// (returning ctx.Err()), the handler fails, or the connection is lost
	// (returning ErrConnectionLost).
	Consume(ctx context.Context, queueName string, prefetch int, handler HandlerFunc) error
	Close() error
}

// Broker is a client that can both publish and consume.
type Broker interface {
	Publisher
	Consumer
	Ping(ctx context.Context) error
}

const (
	dispositionAck     = "ack"
	dispositionDiscard = "discard"
	dispositionRequeue = "requeue"
)

func disposition(requeue bool) string {
	if requeue {
		return dispositionRequeue
	}
	return dispositionDiscard
}
