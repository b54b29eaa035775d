package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/cache"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
)

type manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func newTestClient(t *testing.T, h http.HandlerFunc, headers map[string]string) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(c, "npm", time.Hour, headers)
	client.SetHTTPClient(srv.Client())
	return client, srv.URL
}

func TestClientGetDecodesAndSendsHeaders(t *testing.T) {
	var got http.Header
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewEncoder(w).Encode(manifest{Name: "cross-spawn", Version: "4.0.0"})
	}, map[string]string{"Accept": "application/json", "X-Override": "default"})

	var m manifest
	err := client.GetWithHeaders(context.Background(), url+"/cross-spawn", map[string]string{"X-Override": "request"}, &m)
	if err != nil {
		t.Fatalf("GetWithHeaders: %v", err)
	}
	if m.Name != "cross-spawn" || m.Version != "4.0.0" {
		t.Errorf("decoded %+v", m)
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("default header missing: %v", got)
	}
	if got.Get("X-Override") != "request" {
		t.Errorf("X-Override = %q, request headers should win", got.Get("X-Override"))
	}
	if !strings.HasPrefix(got.Get("User-Agent"), "pkganalyzer/") {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
}

func TestClientGetStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		notFound  bool
		retryable bool
	}{
		{http.StatusNotFound, true, false},
		{http.StatusInternalServerError, false, true},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, nil)

			var m manifest
			err := client.Get(context.Background(), url, &m)
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Errorf("ErrNotFound = %v, want %v (%v)", !tt.notFound, tt.notFound, err)
			}
			if httputil.IsRetryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v (%v)", !tt.retryable, tt.retryable, err)
			}
		})
	}
}

func TestClientGetBadJSON(t *testing.T) {
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}, nil)

	var m manifest
	if err := client.Get(context.Background(), url, &m); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestClientCached(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, nil, nil)

	fetches := 0
	load := func(dst *manifest) func() error {
		return func() error {
			fetches++
			*dst = manifest{Name: "cross-spawn", Version: "4.0.0"}
			return nil
		}
	}

	var first, second, third manifest
	if err := client.Cached(ctx, "cross-spawn", false, &first, load(&first)); err != nil {
		t.Fatalf("Cached: %v", err)
	}
	if err := client.Cached(ctx, "cross-spawn", false, &second, load(&second)); err != nil {
		t.Fatalf("Cached: %v", err)
	}
	if fetches != 1 || second.Version != "4.0.0" {
		t.Errorf("after hit: fetches = %d, value = %+v", fetches, second)
	}

	if err := client.Cached(ctx, "cross-spawn", true, &third, load(&third)); err != nil {
		t.Fatalf("Cached(refresh): %v", err)
	}
	if fetches != 2 {
		t.Errorf("refresh should bypass the cache, fetches = %d", fetches)
	}
}

func TestClientCachedErrors(t *testing.T) {
	client := NewClient(nil, "npm", time.Hour, nil)
	client.SetRetryPolicy(httputil.Policy{Attempts: 3, Delay: time.Millisecond})

	t.Run("transient retried", func(t *testing.T) {
		calls := 0
		var m manifest
		err := client.Cached(context.Background(), "a", false, &m, func() error {
			if calls++; calls < 3 {
				return CheckStatus(http.StatusBadGateway)
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err = %v, calls = %d; want nil, 3", err, calls)
		}
	})

	t.Run("not found not retried", func(t *testing.T) {
		calls := 0
		var m manifest
		err := client.Cached(context.Background(), "b", false, &m, func() error {
			calls++
			return ErrNotFound
		})
		if !errors.Is(err, ErrNotFound) || calls != 1 {
			t.Errorf("err = %v, calls = %d; want ErrNotFound, 1", err, calls)
		}
	})
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code      int
		wantErr   bool
		notFound  bool
		retryable bool
	}{
		{200, false, false, false},
		{204, false, false, false},
		{400, true, false, false},
		{403, true, false, false},
		{404, true, true, false},
		{410, true, true, false},
		{429, true, false, true},
		{500, true, false, true},
		{502, true, false, true},
		{503, true, false, true},
	}
	for _, tt := range tests {
		err := CheckStatus(tt.code)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckStatus(%d) = %v, wantErr %v", tt.code, err, tt.wantErr)
			continue
		}
		if errors.Is(err, ErrNotFound) != tt.notFound {
			t.Errorf("CheckStatus(%d) not-found mismatch: %v", tt.code, err)
		}
		if httputil.IsRetryable(err) != tt.retryable {
			t.Errorf("CheckStatus(%d) retryable mismatch: %v", tt.code, err)
		}
	}
}

func TestEscapePackage(t *testing.T) {
	tests := []struct{ in, want string }{
		{"cross-spawn", "cross-spawn"},
		{"@babel/core", "@babel%2Fcore"},
	}
	for _, tt := range tests {
		if got := EscapePackage(tt.in); got != tt.want {
			t.Errorf("EscapePackage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientOpenReturnsErrorResponses(t *testing.T) {
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}, nil)

	resp, err := client.Open(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden || resp.Header.Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("unexpected response: %d %v", resp.StatusCode, resp.Header)
	}
}
