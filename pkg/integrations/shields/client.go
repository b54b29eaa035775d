// Package shields fetches badge values from a shields.io compatible service.
//
// The JSON endpoint of a badge (<base>/<service>/<slug>.json) answers with
// the rendered label and value, e.g. {"name":"coverage","value":"94%"}.
// The analyzer uses it to read coverage percentages.
package shields

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/cache"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
)

// DefaultBaseURL is the public badge service.
const DefaultBaseURL = "https://img.shields.io"

// Badge is a badge as rendered by the service. Value is kept raw because the
// service is not consistent about its type.
type Badge struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// StringValue returns the value if it is a JSON string.
func (b *Badge) StringValue() (string, bool) {
	var s string
	if len(b.Value) == 0 || json.Unmarshal(b.Value, &s) != nil {
		return "", false
	}
	return s, true
}

// Options configure a [Client].
type Options struct {
	BaseURL string
	Cache   cache.Cache
	TTL     time.Duration
}

// Client reads badges.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a badge client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(opts.Cache, "shields", opts.TTL, nil),
		baseURL: integrations.TrimBaseURL(opts.BaseURL),
	}
}

// Badge fetches the badge of a service (e.g. "coveralls") for a repository
// slug. A badge the service does not know yields (nil, nil).
func (c *Client) Badge(ctx context.Context, service, slug string) (*Badge, error) {
	key := service + "/" + slug
	url := fmt.Sprintf("%s/%s/%s.json", c.baseURL, service, slug)

	var b Badge
	err := c.Cached(ctx, key, false, &b, func() error {
		return c.Get(ctx, url, &b)
	})
	if errors.Is(err, integrations.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
