package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker. It is safe for concurrent use.
type MemoryBroker struct {
	mu          sync.Mutex
	pending     []*Delivery
	processing  map[string]*Delivery
	failed      []*Delivery
	maxAttempts int
	closed      bool
	notify      chan struct{}
	now         func() time.Time
}

// NewMemoryBroker creates an empty broker. maxAttempts <= 0 means
// [DefaultMaxAttempts].
func NewMemoryBroker(maxAttempts int) *MemoryBroker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryBroker{
		processing:  make(map[string]*Delivery),
		maxAttempts: maxAttempts,
		notify:      make(chan struct{}, 1),
		now:         time.Now,
	}
}

// Publish implements Broker.
func (b *MemoryBroker) Publish(_ context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.pending = append(b.pending, NewDelivery(job, b.now()))
	b.signal()
	return nil
}

// Receive implements Broker.
func (b *MemoryBroker) Receive(ctx context.Context) (*Delivery, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if len(b.pending) > 0 {
			d := b.pending[0]
			b.pending = b.pending[1:]
			b.processing[d.ID] = d
			if len(b.pending) > 0 {
				b.signal()
			}
			b.mu.Unlock()
			return d, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notify:
		}
	}
}

// Ack implements Broker.
func (b *MemoryBroker) Ack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.processing[d.ID]; !ok {
		return fmt.Errorf("ack %s: not in flight", d.ID)
	}
	delete(b.processing, d.ID)
	return nil
}

// Reject implements Broker.
func (b *MemoryBroker) Reject(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.processing[d.ID]; !ok {
		return fmt.Errorf("reject %s: not in flight", d.ID)
	}
	delete(b.processing, d.ID)

	next := *d
	next.Attempts++
	if next.Attempts >= b.maxAttempts {
		b.failed = append(b.failed, &next)
		return nil
	}
	b.pending = append(b.pending, &next)
	b.signal()
	return nil
}

// Failed returns the dead-lettered deliveries.
func (b *MemoryBroker) Failed() []*Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Delivery(nil), b.failed...)
}

// Stats implements Broker.
func (b *MemoryBroker) Stats(context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Pending:    int64(len(b.pending)),
		Processing: int64(len(b.processing)),
		Failed:     int64(len(b.failed)),
	}, nil
}

// Close implements Broker. Blocked receivers return [ErrClosed].
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.notify)
	}
	return nil
}

// signal wakes one receiver. Must be called with b.mu held.
func (b *MemoryBroker) signal() {
	if b.closed {
		return
	}
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
