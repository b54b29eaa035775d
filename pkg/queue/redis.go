package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultBlockTimeout bounds one blocking receive on Redis.
const DefaultBlockTimeout = 5 * time.Second

// RedisOptions configure a [RedisBroker].
type RedisOptions struct {
	// Name is the pending list. The processing and dead-letter lists are
	// Name+":processing" and Name+":failed".
	Name        string
	MaxAttempts int
	// BlockTimeout bounds a single BLMOVE; Receive keeps waiting across
	// timeouts until its context ends.
	BlockTimeout time.Duration
	Now          func() time.Time
}

// RedisBroker is a reliable queue on Redis lists. Received jobs sit in the
// processing list until they are settled, so a crashed worker does not lose
// them (see [RedisBroker.Recover]).
type RedisBroker struct {
	client     redis.UniversalClient
	owned      bool
	pending    string
	processing string
	failed     string
	opts       RedisOptions
}

// NewRedisBroker creates a broker on an existing client. Close does not
// close the client.
func NewRedisBroker(client redis.UniversalClient, opts RedisOptions) *RedisBroker {
	if opts.Name == "" {
		opts.Name = "analyze"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = DefaultBlockTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedisBroker{
		client:     client,
		pending:    opts.Name,
		processing: opts.Name + ":processing",
		failed:     opts.Name + ":failed",
		opts:       opts,
	}
}

// DialRedisBroker connects to the Redis server at url (redis://...) and
// verifies the connection.
func DialRedisBroker(ctx context.Context, url string, opts RedisOptions) (*RedisBroker, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b := NewRedisBroker(client, opts)
	b.owned = true
	return b, nil
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, job Job) error {
	raw, err := NewDelivery(job, b.opts.Now()).encode()
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.pending, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", job.Name, err)
	}
	return nil
}

// Receive implements Broker. Deliveries come out in publish order.
func (b *RedisBroker) Receive(ctx context.Context) (*Delivery, error) {
	for {
		raw, err := b.client.BLMove(ctx, b.pending, b.processing, "RIGHT", "LEFT", b.opts.BlockTimeout).Result()
		switch {
		case errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("receive: %w", err)
		}

		d, err := decodeDelivery(raw)
		if err != nil {
			// Unreadable entries can never be processed.
			if derr := b.deadLetter(ctx, raw); derr != nil {
				return nil, derr
			}
			continue
		}
		return d, nil
	}
}

// Ack implements Broker.
func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if err := b.client.LRem(ctx, b.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", d.ID, err)
	}
	return nil
}

// Reject implements Broker.
func (b *RedisBroker) Reject(ctx context.Context, d *Delivery) error {
	next := *d
	next.Attempts++
	raw, err := next.encode()
	if err != nil {
		return err
	}
	target := b.pending
	if next.Attempts >= b.opts.MaxAttempts {
		target = b.failed
	}
	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, b.processing, 1, d.raw)
		p.LPush(ctx, target, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reject %s: %w", d.ID, err)
	}
	return nil
}

// Recover moves every job left in the processing list back to the pending
// list. Only call it when no other worker is consuming the queue.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := b.client.LMove(ctx, b.processing, b.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover: %w", err)
		}
		n++
	}
}

// Stats implements Broker.
func (b *RedisBroker) Stats(ctx context.Context) (Stats, error) {
	p := b.client.Pipeline()
	pending := p.LLen(ctx, b.pending)
	processing := p.LLen(ctx, b.processing)
	failed := p.LLen(ctx, b.failed)
	if _, err := p.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Processing: processing.Val(), Failed: failed.Val()}, nil
}

// Close implements Broker.
func (b *RedisBroker) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

func (b *RedisBroker) deadLetter(ctx context.Context, raw string) error {
	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, b.processing, 1, raw)
		p.LPush(ctx, b.failed, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter: %w", err)
	}
	return nil
}
