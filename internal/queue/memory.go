package queue

import (
	"context"
	"strconv"
	"sync"

	"smssim/pkg/models"
)

// MemoryBroker is an in-process Broker with per-queue FIFO delivery. It
// backs tests and keeps counts of every settlement.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string][][]byte
	changed chan struct{}
	closed  bool
	seq     uint64
	counts  MemoryCounts
}

type MemoryCounts struct {
	Published int
	Acked     int
	Discarded int
	Requeued  int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:  make(map[string][][]byte),
		changed: make(chan struct{}),
	}
}

// signal wakes every waiting consumer. Callers hold b.mu.
func (b *MemoryBroker) signal() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *MemoryBroker) Enqueue(ctx context.Context, queueName string, item models.WorkItem) error {
	body, err := item.Encode()
	if err != nil {
		return err
	}
	return b.PublishRaw(ctx, queueName, body)
}

// PublishRaw enqueues body as is, without encoding or validation.
func (b *MemoryBroker) PublishRaw(ctx context.Context, queueName string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrUnavailable
	}
	b.queues[queueName] = append(b.queues[queueName], body)
	b.counts.Published++
	b.signal()
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, queueName string, prefetch int, handler HandlerFunc) error {
	if prefetch < 1 {
		prefetch = 1
	}

	// Deliveries the handler left unsettled go back to the head of the
	// queue when this consumer goes away, as a broker does on disconnect.
	var unsettled []*memoryDelivery
	defer func() {
		b.reclaim(queueName, unsettled)
	}()

	for {
		// At most prefetch deliveries stay unsettled. Past that the
		// consumer waits for a settlement.
		wait, err := b.watch()
		if err != nil {
			return err
		}
		unsettled = pending(unsettled)
		if len(unsettled) >= prefetch {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
				continue
			}
		}

		d, wait, err := b.next(queueName)
		if err != nil {
			return err
		}

		if d == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
				continue
			}
		}

		err = handler(ctx, d)
		if !d.guard.settled.Load() {
			unsettled = append(unsettled, d)
		}
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// watch returns a channel closed on the next state change.
func (b *MemoryBroker) watch() (<-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrConnectionLost
	}
	return b.changed, nil
}

func pending(deliveries []*memoryDelivery) []*memoryDelivery {
	out := deliveries[:0]
	for _, d := range deliveries {
		if !d.guard.settled.Load() {
			out = append(out, d)
		}
	}
	return out
}

func (b *MemoryBroker) next(queueName string) (*memoryDelivery, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrConnectionLost
	}

	items := b.queues[queueName]
	if len(items) == 0 {
		return nil, b.changed, nil
	}

	body := items[0]
	b.queues[queueName] = items[1:]
	b.seq++

	return &memoryDelivery{
		broker: b,
		queue:  queueName,
		id:     strconv.FormatUint(b.seq, 10),
		body:   body,
	}, nil, nil
}

func (b *MemoryBroker) reclaim(queueName string, deliveries []*memoryDelivery) {
	if len(deliveries) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	head := make([][]byte, 0, len(deliveries)+len(b.queues[queueName]))
	for _, d := range deliveries {
		if d.guard.claim() == nil {
			head = append(head, d.body)
		}
	}
	b.queues[queueName] = append(head, b.queues[queueName]...)
	b.signal()
}

func (b *MemoryBroker) settle(d *memoryDelivery, disposition string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrConnectionLost
	}

	switch disposition {
	case dispositionAck:
		b.counts.Acked++
	case dispositionDiscard:
		b.counts.Discarded++
	case dispositionRequeue:
		b.counts.Requeued++
		b.queues[d.queue] = append([][]byte{d.body}, b.queues[d.queue]...)
	}
	b.signal()
	return nil
}

// Len reports how many items are waiting in queueName.
func (b *MemoryBroker) Len(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queueName])
}

func (b *MemoryBroker) Counts() MemoryCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *MemoryBroker) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrUnavailable
	}
	return nil
}

// Close drops the connection. Running consumers return ErrConnectionLost.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.signal()
	}
	return nil
}

type memoryDelivery struct {
	broker *MemoryBroker
	queue  string
	id     string
	body   []byte
	guard  settleGuard
}

func (d *memoryDelivery) ID() string   { return d.id }
func (d *memoryDelivery) Body() []byte { return d.body }

func (d *memoryDelivery) Ack(ctx context.Context) error {
	if err := d.guard.claim(); err != nil {
		return err
	}
	return d.broker.settle(d, dispositionAck)
}

func (d *memoryDelivery) Nack(ctx context.Context, requeue bool) error {
	if err := d.guard.claim(); err != nil {
		return err
	}
	return d.broker.settle(d, disposition(requeue))
}
