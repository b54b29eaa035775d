package npm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/cache"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
)

const planifyDoc = `{
	"name": "planify",
	"dist-tags": {"latest": "1.0.0"},
	"versions": {
		"1.0.0": {
			"name": "planify",
			"version": "1.0.0",
			"repository": {"type": "git", "url": "git://github.com/IndigoUnited/node-planify.git"}
		}
	}
}`

func TestFetchPackage(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch r.URL.EscapedPath() {
		case "/planify":
			w.Write([]byte(planifyDoc))
		case "/@scope%2Fpkg":
			w.Write([]byte(`{"name": "@scope/pkg", "versions": {}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fc, _ := cache.NewFileCache(t.TempDir())
	client := NewClient(Options{BaseURL: server.URL + "/", Cache: fc, TTL: time.Hour})

	data, err := client.FetchPackage(context.Background(), "planify", false)
	if err != nil {
		t.Fatalf("FetchPackage() error: %v", err)
	}
	if data.Name != "planify" || len(data.Versions) != 1 {
		t.Errorf("unexpected data: %+v", data)
	}

	// Second call is served from cache.
	if _, err := client.FetchPackage(context.Background(), "planify", false); err != nil {
		t.Fatalf("FetchPackage() cached error: %v", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}

	scoped, err := client.FetchPackage(context.Background(), "@scope/pkg", true)
	if err != nil {
		t.Fatalf("FetchPackage(scoped) error: %v", err)
	}
	if scoped.Name != "@scope/pkg" {
		t.Errorf("scoped name = %q", scoped.Name)
	}
}

func TestFetchPackageNotFoundIsUnrecoverable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})

	_, err := client.FetchPackage(context.Background(), "does-not-exist", true)
	if !perrors.IsUnrecoverable(err) {
		t.Errorf("error = %v, want unrecoverable", err)
	}
	if !perrors.Is(err, perrors.ErrCodePackageNotFound) {
		t.Errorf("code = %s, want PACKAGE_NOT_FOUND", perrors.GetCode(err))
	}
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound: %v", err)
	}
}

func TestFetchPackageInvalidName(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:0"})
	_, err := client.FetchPackage(context.Background(), "../etc/passwd", true)
	if !perrors.IsUnrecoverable(err) {
		t.Errorf("error = %v, want unrecoverable", err)
	}
}

func TestTarball(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/planify/-/planify-1.0.0.tgz" {
			w.Write([]byte("gzip-bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})

	body, err := client.Tarball(context.Background(), server.URL+"/planify/-/planify-1.0.0.tgz")
	if err != nil {
		t.Fatalf("Tarball() error: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "gzip-bytes" {
		t.Errorf("body = %q", data)
	}

	_, err = client.Tarball(context.Background(), server.URL+"/planify/-/planify-0.0.1.tgz")
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("Tarball(missing) error = %v, want ErrNotFound", err)
	}
}
