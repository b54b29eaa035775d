package integrations

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const httpTimeout = 15 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// NewHTTPClient creates an HTTP client with a standard timeout for API requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// NewHTTPClientWithTimeout creates an HTTP client with the given timeout.
// Tarball downloads use a longer timeout than metadata requests.
func NewHTTPClientWithTimeout(d time.Duration) *http.Client {
	if d <= 0 {
		d = httpTimeout
	}
	return &http.Client{Timeout: d}
}

// EscapePackage escapes an npm package name for use as a URL path segment.
// Scoped names keep their "@" but have the slash encoded.
func EscapePackage(name string) string { return url.PathEscape(name) }

// TrimBaseURL removes a trailing slash from a configured base URL.
func TrimBaseURL(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }
