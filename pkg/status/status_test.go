package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/observability"
	"github.com/matzehuels/pkganalyzer/pkg/queue"
	"github.com/matzehuels/pkganalyzer/pkg/tokens"
)

type fixedQueue struct {
	stats queue.Stats
	err   error
}

func (q fixedQueue) Stats(context.Context) (queue.Stats, error) { return q.stats, q.err }

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(New(Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}
}

func TestStats(t *testing.T) {
	counters := observability.NewCounters()
	counters.OnJobStart(context.Background(), "a")
	counters.OnJobComplete(context.Background(), "a", observability.OutcomeAcked, time.Second, nil)
	pool, err := tokens.New([]string{"ghp_secrettoken1234"}, tokens.Options{})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(New(Options{
		Version:  "v1.2.3",
		Counters: counters,
		Pool:     pool,
		Queue:    fixedQueue{stats: queue.Stats{Pending: 7, Failed: 1}},
	}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "ghp_secrettoken1234") {
		t.Errorf("stats leak a token: %s", raw)
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if report.Version != "v1.2.3" {
		t.Errorf("Version = %q", report.Version)
	}
	if report.Counters == nil || report.Counters.Acked != 1 {
		t.Errorf("Counters = %+v", report.Counters)
	}
	if len(report.Credentials) != 1 {
		t.Errorf("Credentials = %+v", report.Credentials)
	}
	if report.Queue == nil || report.Queue.Pending != 7 || report.Queue.Failed != 1 {
		t.Errorf("Queue = %+v", report.Queue)
	}
}

func TestStatsQueueError(t *testing.T) {
	srv := httptest.NewServer(New(Options{Queue: fixedQueue{err: errors.New("redis down")}}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Queue != nil || report.QueueError != "redis down" {
		t.Errorf("report = %+v", report)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(Options{}).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
