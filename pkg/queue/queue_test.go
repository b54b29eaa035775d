package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

func TestDeliveryEnvelope(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d := NewDelivery(Job{Name: "cross-spawn", Data: &pkgdata.Data{Name: "cross-spawn"}}, now)
	d.Attempts = 2

	raw, err := d.encode()
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "job", "attempts", "enqueuedAt"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("envelope %s lacks %q", raw, key)
		}
	}

	got, err := decodeDelivery(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != d.ID || got.Job.Name != "cross-spawn" || got.Attempts != 2 || !got.EnqueuedAt.Equal(now) {
		t.Errorf("decoded %+v", got)
	}
	if got.Job.Data == nil || got.Job.Data.Name != "cross-spawn" {
		t.Errorf("Data = %+v", got.Job.Data)
	}
	if got.raw != raw {
		t.Error("raw envelope not kept")
	}

	if _, err := decodeDelivery("{not json"); err == nil {
		t.Error("expected error for malformed envelope")
	}
}

func TestNewDeliveryUniqueIDs(t *testing.T) {
	a := NewDelivery(Job{Name: "a"}, time.Now())
	b := NewDelivery(Job{Name: "a"}, time.Now())
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("IDs %q and %q", a.ID, b.ID)
	}
}

func TestMemoryBrokerOrderAndAck(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(0)
	for _, name := range []string{"a", "b", "c"} {
		if err := b.Publish(ctx, Job{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	for range 3 {
		d, err := b.Receive(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, d.Job.Name)
		if err := b.Ack(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v", got)
	}
	stats, _ := b.Stats(ctx)
	if stats != (Stats{}) {
		t.Errorf("Stats = %+v, want empty", stats)
	}
}

func TestMemoryBrokerRejectDeadLetters(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(3)
	if err := b.Publish(ctx, Job{Name: "flaky"}); err != nil {
		t.Fatal(err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		d, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if d.Attempts != attempt {
			t.Errorf("Attempts = %d, want %d", d.Attempts, attempt)
		}
		if err := b.Reject(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	stats, _ := b.Stats(ctx)
	if stats.Pending != 0 || stats.Failed != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if failed := b.Failed(); len(failed) != 1 || failed[0].Attempts != 3 {
		t.Errorf("Failed = %+v", failed)
	}
}

func TestMemoryBrokerSettleTwice(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(0)
	_ = b.Publish(ctx, Job{Name: "x"})
	d, _ := b.Receive(ctx)
	if err := b.Ack(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := b.Ack(ctx, d); err == nil {
		t.Error("second Ack succeeded")
	}
	if err := b.Reject(ctx, d); err == nil {
		t.Error("Reject after Ack succeeded")
	}
}

func TestMemoryBrokerReceiveBlocks(t *testing.T) {
	b := NewMemoryBroker(0)
	got := make(chan string, 1)
	go func() {
		d, err := b.Receive(context.Background())
		if err != nil {
			got <- err.Error()
			return
		}
		got <- d.Job.Name
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Publish(context.Background(), Job{Name: "late"}); err != nil {
		t.Fatal(err)
	}
	select {
	case name := <-got:
		if name != "late" {
			t.Errorf("received %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}

func TestMemoryBrokerReceiveCancelled(t *testing.T) {
	b := NewMemoryBroker(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker(0)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Receive(context.Background())
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	}
	if err := b.Publish(context.Background(), Job{Name: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v", err)
	}
}

func TestMemoryBrokerConcurrentReceivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b := NewMemoryBroker(0)
	const jobs = 50
	for i := 0; i < jobs; i++ {
		_ = b.Publish(ctx, Job{Name: "pkg"})
	}

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				done := len(seen) == jobs
				mu.Unlock()
				if done {
					return
				}
				rctx, rcancel := context.WithTimeout(ctx, 50*time.Millisecond)
				d, err := b.Receive(rctx)
				rcancel()
				if err != nil {
					continue
				}
				mu.Lock()
				if seen[d.ID] {
					t.Errorf("delivery %s received twice", d.ID)
				}
				seen[d.ID] = true
				mu.Unlock()
				_ = b.Ack(ctx, d)
			}
		}()
	}
	wg.Wait()
	if len(seen) != jobs {
		t.Errorf("received %d deliveries, want %d", len(seen), jobs)
	}
}
