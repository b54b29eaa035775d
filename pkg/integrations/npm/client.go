package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/cache"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

// DefaultBaseURL is the public npm registry.
const DefaultBaseURL = "https://registry.npmjs.org"

const tarballTimeout = 5 * time.Minute

// Options configure a [Client].
type Options struct {
	// BaseURL is the registry or CouchDB database URL. Defaults to [DefaultBaseURL].
	BaseURL string
	// Cache stores package documents for TTL. Nil disables caching.
	Cache cache.Cache
	TTL   time.Duration
}

// Client fetches package documents and tarballs.
type Client struct {
	*integrations.Client
	baseURL  string
	download *http.Client
}

// NewClient creates a registry client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	headers := map[string]string{"Accept": "application/json"}
	return &Client{
		Client:   integrations.NewClient(opts.Cache, "npm", opts.TTL, headers),
		baseURL:  integrations.TrimBaseURL(opts.BaseURL),
		download: integrations.NewHTTPClientWithTimeout(tarballTimeout),
	}
}

// FetchPackage retrieves the registry document of pkg. If refresh is true,
// cached data is bypassed.
func (c *Client) FetchPackage(ctx context.Context, pkg string, refresh bool) (*pkgdata.Data, error) {
	if err := perrors.ValidateNpmPackageName(pkg); err != nil {
		return nil, perrors.Unrecoverable(err)
	}

	var data pkgdata.Data
	err := c.Cached(ctx, pkg, refresh, &data, func() error {
		return c.fetch(ctx, pkg, &data)
	})
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) fetch(ctx context.Context, pkg string, data *pkgdata.Data) error {
	url := c.baseURL + "/" + integrations.EscapePackage(pkg)
	if err := c.Get(ctx, url, data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return perrors.Unrecoverable(perrors.Wrap(perrors.ErrCodePackageNotFound, err, "npm package %s", pkg))
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return perrors.Unrecoverable(perrors.Wrap(perrors.ErrCodeInvalidPackage, err, "malformed npm document for %s", pkg))
		}
		return err
	}
	if data.Name == "" {
		data.Name = pkg
	}
	return nil
}

// Tarball opens a published tarball. A tarball the registry no longer has
// is reported as [integrations.ErrNotFound].
func (c *Client) Tarball(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty tarball url", integrations.ErrNotFound)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", integrations.ErrNetwork, err)}
	}
	if err := integrations.CheckStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("tarball %s: %w", url, err)
	}
	return resp.Body, nil
}
