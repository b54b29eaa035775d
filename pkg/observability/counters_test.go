package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCountersJobs(t *testing.T) {
	c := NewCounters()
	ctx := context.Background()

	c.OnJobStart(ctx, "a")
	c.OnJobStart(ctx, "b")
	c.OnJobStart(ctx, "c")
	c.OnJobComplete(ctx, "a", OutcomeAcked, 0, nil)
	c.OnJobComplete(ctx, "b", OutcomeRequeued, 0, errors.New("flaky"))

	s := c.Snapshot()
	if s.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1", s.InFlight)
	}
	if s.Acked != 1 || s.Requeued != 1 || s.Failed != 1 {
		t.Errorf("got acked=%d requeued=%d failed=%d", s.Acked, s.Requeued, s.Failed)
	}
}

func TestCountersTools(t *testing.T) {
	c := NewCounters()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			class := ""
			if i%2 == 0 {
				class = "transient"
			}
			c.OnToolAttempt(ctx, "outdated", i, class, 0)
		}()
	}
	wg.Wait()
	c.OnToolUnavailable(ctx, "outdated", "permanent")

	got := c.Snapshot().Tools["outdated"]
	want := ToolStats{Attempts: 10, Failures: 5, Unavailable: 1}
	if got != want {
		t.Errorf("tool stats = %+v, want %+v", got, want)
	}
}
