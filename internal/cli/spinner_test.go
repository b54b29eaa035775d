package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerDrawsAndClears(t *testing.T) {
	var out syncBuffer
	s := newSpinnerWithContext(context.Background(), "Analyzing cross-spawn...")
	s.w = &out
	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	got := out.String()
	if !strings.Contains(got, "Analyzing cross-spawn...") {
		t.Errorf("output %q lacks the message", got)
	}
	if !strings.HasSuffix(got, "\r") {
		t.Errorf("line not cleared: %q", got)
	}
	if s.Cancelled() != true {
		t.Error("Stop should cancel the spinner context")
	}
}

func TestSpinnerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinnerWithContext(ctx, "Waiting...")
	s.w = &syncBuffer{}
	s.Start()
	cancel()

	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		t.Fatal("spinner did not stop on cancellation")
	}
	if !s.Cancelled() {
		t.Error("Cancelled() = false after context cancellation")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinnerWithContext(context.Background(), "Stopping...")
	s.w = &syncBuffer{}
	s.Start()
	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinnerDrawElapsed(t *testing.T) {
	var out syncBuffer
	s := newSpinnerWithContext(context.Background(), "Downloading")
	s.w = &out
	s.draw("⠋", 3*time.Second)
	if !strings.Contains(out.String(), "Downloading 3s") {
		t.Errorf("output = %q", out.String())
	}
	s.clearLine()
	if !strings.HasSuffix(out.String(), "\r") {
		t.Errorf("clearLine did not rewind: %q", out.String())
	}
}
