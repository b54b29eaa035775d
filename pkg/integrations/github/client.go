package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/cache"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/tokens"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

const tarballTimeout = 5 * time.Minute

// ErrRateLimited is returned when the API rejected a call for exceeding the
// quota of the credential that made it.
var ErrRateLimited = perrors.New(perrors.ErrCodeRateLimited, "github rate limit exceeded")

// Options configure a [Client].
type Options struct {
	// BaseURL defaults to [DefaultBaseURL].
	BaseURL string
	// Pool supplies credentials. Nil means unauthenticated requests.
	Pool *tokens.Pool
	// Cache stores repository metadata for TTL. Nil disables caching.
	Cache cache.Cache
	TTL   time.Duration
}

// Client provides access to the GitHub API for repository metadata and
// source tarballs. It handles caching, automatic retries, and credential
// rotation through a [tokens.Pool].
type Client struct {
	*integrations.Client
	baseURL  string
	pool     *tokens.Pool
	download *http.Client
}

// NewClient creates a GitHub API client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Pool == nil {
		pool, err := tokens.New(nil, tokens.Options{AllowUnauthenticated: true, WaitOnRateLimit: true})
		if err != nil {
			return nil, err
		}
		opts.Pool = pool
	}
	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	return &Client{
		Client:   integrations.NewClient(opts.Cache, "github", opts.TTL, headers),
		baseURL:  integrations.TrimBaseURL(opts.BaseURL),
		pool:     opts.Pool,
		download: integrations.NewHTTPClientWithTimeout(tarballTimeout),
	}, nil
}

// Repository retrieves repository metadata and its top contributors.
// If refresh is true, cached data is bypassed. A missing repository is
// reported as [integrations.ErrNotFound].
func (c *Client) Repository(ctx context.Context, owner, repo string, refresh bool) (*Repository, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "github repository %s/%s", owner, repo)
	}
	key := owner + "/" + repo

	var r Repository
	err := c.Cached(ctx, key, refresh, &r, func() error {
		return c.fetchRepository(ctx, owner, repo, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) fetchRepository(ctx context.Context, owner, repo string, r *Repository) error {
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)
	resp, err := c.do(ctx, c.Client.Open, url)
	if err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: github repo %s/%s", err, owner, repo)
		}
		return err
	}
	defer resp.Body.Close()

	var data repoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("decode github repo %s/%s: %w", owner, repo, err)
	}

	*r = Repository{
		FullName:      data.FullName,
		Description:   data.Description,
		Homepage:      data.Homepage,
		DefaultBranch: data.DefaultBranch,
		Stars:         data.Stars,
		Forks:         data.Forks,
		Subscribers:   data.Subscribers,
		OpenIssues:    data.OpenIssues,
		Fork:          data.Fork,
		Archived:      data.Archived,
		CreatedAt:     data.CreatedAt,
		PushedAt:      data.PushedAt,
	}
	if contribs, err := c.fetchContributors(ctx, owner, repo); err == nil {
		r.Contributors = contribs
	}
	return nil
}

func (c *Client) fetchContributors(ctx context.Context, owner, repo string) ([]Contributor, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contributors?per_page=10", c.baseURL, owner, repo)
	resp, err := c.do(ctx, c.Client.Open, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Empty repositories answer 204.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var data []contributorResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	var result []Contributor
	for _, cr := range data {
		if cr.Type != "Bot" {
			result = append(result, Contributor{Login: cr.Login, Contributions: cr.Contributions})
		}
	}
	return result, nil
}

// Tarball opens the source tarball (gzip) of owner/repo at ref. An empty ref
// means the default branch. The caller must close the returned body.
func (c *Client) Tarball(ctx context.Context, owner, repo, ref string) (io.ReadCloser, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "github repository %s/%s", owner, repo)
	}
	url := fmt.Sprintf("%s/repos/%s/%s/tarball", c.baseURL, owner, repo)
	if ref != "" {
		url += "/" + ref
	}

	resp, err := c.do(ctx, c.openDownload, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) openDownload(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", integrations.ErrNetwork, err)}
	}
	return resp, nil
}

type opener func(ctx context.Context, url string, headers map[string]string) (*http.Response, error)

// do performs one authenticated request. It holds a lease until the response
// headers arrive and reports their rate-limit values back to the pool.
// Non-2xx responses are closed and returned as errors.
func (c *Client) do(ctx context.Context, open opener, url string) (*http.Response, error) {
	lease, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var headers map[string]string
	if token := lease.Token(); token != "" {
		headers = map[string]string{"Authorization": "Bearer " + token}
	}
	resp, err := open(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if usage, ok := UsageFromHeaders(resp.Header); ok {
		lease.Report(usage)
	}

	if isRateLimited(resp) {
		resp.Body.Close()
		return nil, perrors.Transient(&httputil.RetryableError{Err: ErrRateLimited})
	}
	if err := integrations.CheckStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// UsageFromHeaders reads the X-RateLimit-* headers of a GitHub response.
func UsageFromHeaders(h http.Header) (tokens.Usage, bool) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return tokens.Usage{}, false
	}
	u := tokens.Usage{Remaining: remaining}
	if limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit")); err == nil {
		u.Limit = limit
	}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		u.Reset = time.Unix(reset, 0)
	}
	return u, true
}

func isRateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""
	}
	return false
}
