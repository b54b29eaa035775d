// Package queue moves analysis jobs between producers and workers.
//
// A [Broker] hands out [Delivery] values. Each delivery must be settled
// exactly once: [Broker.Ack] drops it, [Broker.Reject] puts it back with its
// attempt count increased, or moves it to the dead-letter list once the
// attempts are used up.
//
// Backends:
//   - [RedisBroker]: a reliable queue on Redis lists, shared by many workers
//   - [MemoryBroker]: in-process, for one-shot runs and tests
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

// DefaultMaxAttempts is the number of deliveries a job gets before it is
// dead-lettered.
const DefaultMaxAttempts = 5

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("queue: broker closed")

// Job asks for the analysis of a package.
type Job struct {
	Name string `json:"name"`
	// Data is the registry document, when the producer already has it.
	Data *pkgdata.Data `json:"data,omitempty"`
}

// Delivery is a job handed to a worker.
type Delivery struct {
	ID         string    `json:"id"`
	Job        Job       `json:"job"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`

	// raw is the encoded envelope as stored by the broker.
	raw string
}

// NewDelivery wraps a job in a fresh envelope.
func NewDelivery(job Job, now time.Time) *Delivery {
	return &Delivery{ID: uuid.NewString(), Job: job, EnqueuedAt: now}
}

func (d *Delivery) encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode delivery %s: %w", d.ID, err)
	}
	return string(b), nil
}

func decodeDelivery(raw string) (*Delivery, error) {
	var d Delivery
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode delivery: %w", err)
	}
	d.raw = raw
	return &d, nil
}

// Stats counts deliveries by state.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

// Broker is a job queue with explicit settlement.
type Broker interface {
	// Publish enqueues a job.
	Publish(ctx context.Context, job Job) error
	// Receive blocks until a delivery is available or ctx ends.
	Receive(ctx context.Context) (*Delivery, error)
	// Ack settles a delivery as done.
	Ack(ctx context.Context, d *Delivery) error
	// Reject settles a delivery as failed; it is retried later unless its
	// attempts are used up.
	Reject(ctx context.Context, d *Delivery) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
