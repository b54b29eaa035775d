package consumer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/observability"
	"github.com/matzehuels/pkganalyzer/pkg/queue"
)

// start runs c in the background and returns a function that cancels it and
// returns the Run error.
func start(t *testing.T, c *Consumer) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
			return nil
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func publish(t *testing.T, b queue.Broker, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := b.Publish(context.Background(), queue.Job{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
}

func useCounters(t *testing.T) *observability.Counters {
	t.Helper()
	counters := observability.NewCounters()
	observability.SetJobHooks(counters)
	t.Cleanup(observability.Reset)
	return counters
}

func TestConsumerSettlement(t *testing.T) {
	counters := useCounters(t)
	broker := queue.NewMemoryBroker(3)
	var calls sync.Map

	handler := func(_ context.Context, job queue.Job) error {
		n, _ := calls.LoadOrStore(job.Name, new(atomic.Int32))
		count := n.(*atomic.Int32).Add(1)
		switch job.Name {
		case "ok":
			return nil
		case "gone":
			return perrors.Unrecoverable(perrors.New(perrors.ErrCodePackageNotFound, "package not found"))
		case "flaky":
			if count == 1 {
				return perrors.Transient(errors.New("registry timeout"))
			}
			return nil
		default:
			return errors.New("always broken")
		}
	}
	publish(t, broker, "ok", "gone", "flaky", "broken")

	stop := start(t, &Consumer{Broker: broker, Handler: handler, Concurrency: 2})
	waitFor(t, func() bool {
		s, _ := broker.Stats(context.Background())
		return s.Pending == 0 && s.Processing == 0 && s.Failed == 1
	})
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}

	count := func(name string) int32 {
		n, ok := calls.Load(name)
		if !ok {
			return 0
		}
		return n.(*atomic.Int32).Load()
	}
	if count("ok") != 1 || count("gone") != 1 {
		t.Errorf("ok ran %d times, gone ran %d times; want once each", count("ok"), count("gone"))
	}
	if count("flaky") != 2 {
		t.Errorf("flaky ran %d times, want 2", count("flaky"))
	}
	if count("broken") != 3 {
		t.Errorf("broken ran %d times, want 3", count("broken"))
	}
	if failed := broker.Failed(); len(failed) != 1 || failed[0].Job.Name != "broken" {
		t.Errorf("dead letters = %+v", failed)
	}

	stats := counters.Snapshot()
	if stats.Acked != 2 || stats.Dropped != 1 || stats.Requeued != 4 || stats.InFlight != 0 {
		t.Errorf("counters = %+v", stats)
	}
}

func TestConsumerUnrecoverableIsAcked(t *testing.T) {
	broker := queue.NewMemoryBroker(0)
	publish(t, broker, "broken-json")
	var calls atomic.Int32

	stop := start(t, &Consumer{Broker: broker, Handler: func(context.Context, queue.Job) error {
		calls.Add(1)
		return perrors.Unrecoverable(errors.New("EJSONPARSE"))
	}})
	waitFor(t, func() bool {
		s, _ := broker.Stats(context.Background())
		return calls.Load() == 1 && s == (queue.Stats{})
	})
	_ = stop()
	if calls.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", calls.Load())
	}
}

func TestConsumerConcurrencyLimit(t *testing.T) {
	broker := queue.NewMemoryBroker(0)
	const jobs = 12
	for range jobs {
		publish(t, broker, "pkg")
	}

	var inFlight, peak, done atomic.Int32
	handler := func(context.Context, queue.Job) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
		return nil
	}

	stop := start(t, &Consumer{Broker: broker, Handler: handler, Concurrency: 3})
	waitFor(t, func() bool { return done.Load() == jobs })
	_ = stop()

	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
	if p := peak.Load(); p < 2 {
		t.Errorf("peak concurrency = %d, jobs did not run in parallel", p)
	}
}

func TestConsumerDrainsOnCancel(t *testing.T) {
	broker := queue.NewMemoryBroker(0)
	publish(t, broker, "slow")
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	stop := start(t, &Consumer{Broker: broker, Handler: func(ctx context.Context, _ queue.Job) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		finished.Store(true)
		return nil
	}})
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if !finished.Load() {
		t.Error("Run returned before the in-flight job finished")
	}
	if s, _ := broker.Stats(context.Background()); s != (queue.Stats{}) {
		t.Errorf("Stats = %+v, want job acked", s)
	}
}

func TestConsumerDrainTimeoutCancelsJobs(t *testing.T) {
	broker := queue.NewMemoryBroker(0)
	publish(t, broker, "stuck")
	started := make(chan struct{})

	stop := start(t, &Consumer{
		Broker:       broker,
		DrainTimeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context, _ queue.Job) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	<-started
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if s, _ := broker.Stats(context.Background()); s.Pending != 1 {
		t.Errorf("Stats = %+v, want the interrupted job requeued", s)
	}
}

// failingBroker wraps a MemoryBroker and fails selected operations.
type failingBroker struct {
	*queue.MemoryBroker
	receiveErr error
	ackErr     error
}

func (b *failingBroker) Receive(ctx context.Context) (*queue.Delivery, error) {
	if b.receiveErr != nil {
		return nil, b.receiveErr
	}
	return b.MemoryBroker.Receive(ctx)
}

func (b *failingBroker) Ack(ctx context.Context, d *queue.Delivery) error {
	if b.ackErr != nil {
		return b.ackErr
	}
	return b.MemoryBroker.Ack(ctx, d)
}

func TestConsumerStopsOnReceiveError(t *testing.T) {
	lost := errors.New("connection lost")
	broker := &failingBroker{MemoryBroker: queue.NewMemoryBroker(0), receiveErr: lost}

	c := &Consumer{Broker: broker, Handler: func(context.Context, queue.Job) error { return nil }}
	if err := c.Run(context.Background()); !errors.Is(err, lost) {
		t.Errorf("Run = %v, want %v", err, lost)
	}
}

func TestConsumerStopsOnAckError(t *testing.T) {
	lost := errors.New("connection lost")
	broker := &failingBroker{MemoryBroker: queue.NewMemoryBroker(0), ackErr: lost}
	publish(t, broker, "a")

	c := &Consumer{Broker: broker, Handler: func(context.Context, queue.Job) error { return nil }}
	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	select {
	case err := <-errc:
		if !errors.Is(err, lost) {
			t.Errorf("Run = %v, want %v", err, lost)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer kept running after a broker failure")
	}
}

func TestConsumerRecoversPanics(t *testing.T) {
	broker := queue.NewMemoryBroker(1)
	publish(t, broker, "panics")

	stop := start(t, &Consumer{Broker: broker, Handler: func(context.Context, queue.Job) error {
		panic("boom")
	}})
	waitFor(t, func() bool { return len(broker.Failed()) == 1 })
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
}

func TestConsumerRequiresHandler(t *testing.T) {
	c := &Consumer{Broker: queue.NewMemoryBroker(0)}
	if err := c.Run(context.Background()); err == nil {
		t.Error("expected configuration error")
	}
}

func TestConsumerStartupLogsAtDebug(t *testing.T) {
	tests := []struct {
		level log.Level
		want  bool
	}{
		{log.InfoLevel, false},
		{log.DebugLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			c := &Consumer{
				Broker:  queue.NewMemoryBroker(0),
				Handler: func(context.Context, queue.Job) error { return nil },
				Logger:  log.NewWithOptions(&buf, log.Options{Level: tt.level}),
			}
			_ = start(t, c)()
			if got := strings.Contains(buf.String(), "consumer started"); got != tt.want {
				t.Errorf("startup logged = %v, want %v: %q", got, tt.want, buf.String())
			}
		})
	}
}
