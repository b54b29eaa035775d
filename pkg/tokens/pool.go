package tokens

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
)

const (
	// DefaultLimit is the hourly quota of an authenticated GitHub token.
	DefaultLimit = 5000
	// UnauthenticatedLimit is the hourly quota of anonymous GitHub requests.
	UnauthenticatedLimit = 60

	defaultWindow = time.Hour
	minWait       = 5 * time.Millisecond
)

var (
	// ErrRateLimited is returned (classified transient) when every credential is
	// exhausted and the pool does not wait.
	ErrRateLimited = perrors.New(perrors.ErrCodeRateLimited, "all API credentials exhausted")

	// ErrNoCredentials is returned by New when no credential is configured and
	// unauthenticated access is not allowed.
	ErrNoCredentials = perrors.New(perrors.ErrCodeInvalidConfig, "no API credentials configured")
)

// Options configures a Pool.
type Options struct {
	// WaitOnRateLimit suspends Acquire until quota is available instead of failing.
	WaitOnRateLimit bool
	// AllowUnauthenticated enables a single anonymous credential when no tokens are given.
	AllowUnauthenticated bool
	// DefaultLimit is the quota assumed before the API reports one.
	DefaultLimit int
	// Window is the assumed quota window before the API reports a reset time.
	Window time.Duration
	// Now overrides the clock.
	Now    func() time.Time
	Logger *log.Logger
}

// Usage is the rate-limit state of one credential, as reported by the API or
// exposed by [Pool.Snapshot].
type Usage struct {
	Token     string    `json:"token,omitempty"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	InFlight  int       `json:"inFlight"`
}

type credential struct {
	token     string
	limit     int
	remaining int
	reset     time.Time
	reported  bool // reset came from the API, not from our estimate
	inFlight  int
}

// Pool hands out credentials with remaining quota. It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	creds   []*credential
	next    int
	changed chan struct{}

	wait   bool
	window time.Duration
	now    func() time.Time
	logger *log.Logger
}

// New creates a pool from the given tokens. Blank and duplicate tokens are ignored.
func New(tokens []string, opts Options) (*Pool, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Pool{
		changed: make(chan struct{}),
		wait:    opts.WaitOnRateLimit,
		window:  window,
		now:     now,
		logger:  logger,
	}

	seen := make(map[string]bool)
	reset := now().Add(window)
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		p.creds = append(p.creds, &credential{token: t, limit: limit, remaining: limit, reset: reset})
	}

	if len(p.creds) == 0 {
		if !opts.AllowUnauthenticated {
			return nil, ErrNoCredentials
		}
		unauth := min(limit, UnauthenticatedLimit)
		p.creds = append(p.creds, &credential{limit: unauth, remaining: unauth, reset: reset})
		logger.Warn("no API credentials configured, using unauthenticated access", "limit", unauth)
	}
	return p, nil
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Acquire reserves one call's worth of quota on the best available credential.
// It blocks while every credential is exhausted unless the pool fails fast.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	for {
		p.mu.Lock()
		now := p.now()
		p.refresh(now)
		if c := p.pick(); c != nil {
			c.remaining--
			c.inFlight++
			p.mu.Unlock()
			return &Lease{pool: p, cred: c}, nil
		}

		reset := p.soonestReset()
		changed := p.changed
		p.mu.Unlock()

		if !p.wait {
			return nil, perrors.Transient(&perrors.Error{
				Code:    ErrRateLimited.Code,
				Message: ErrRateLimited.Message,
				Cause:   &perrors.RateLimitedError{RetryAfter: int(reset.Sub(now).Seconds())},
			})
		}

		wait := max(reset.Sub(now), minWait)
		p.logger.Debug("all credentials exhausted, waiting", "wait", wait.Round(time.Millisecond))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-changed:
			t.Stop()
		case <-t.C:
		}
	}
}

// Snapshot returns the current state of every credential with tokens masked.
func (p *Pool) Snapshot() []Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Usage, len(p.creds))
	for i, c := range p.creds {
		out[i] = Usage{
			Token:     mask(c.token),
			Limit:     c.limit,
			Remaining: c.remaining,
			Reset:     c.reset,
			InFlight:  c.inFlight,
		}
	}
	return out
}

// refresh restores the quota of credentials whose window has ended.
func (p *Pool) refresh(now time.Time) {
	for _, c := range p.creds {
		if now.Before(c.reset) {
			continue
		}
		c.remaining = max(c.limit-c.inFlight, 0)
		c.reset = now.Add(p.window)
		c.reported = false
	}
}

// pick returns the credential with quota left, preferring idle credentials and
// then the most remaining quota. Ties rotate round-robin.
func (p *Pool) pick() *credential {
	n := len(p.creds)
	best := -1
	for i := range n {
		idx := (p.next + i) % n
		c := p.creds[idx]
		if c.remaining <= 0 {
			continue
		}
		if best < 0 || better(c, p.creds[best]) {
			best = idx
		}
	}
	if best < 0 {
		return nil
	}
	p.next = (best + 1) % n
	return p.creds[best]
}

func better(a, b *credential) bool {
	if a.inFlight != b.inFlight {
		return a.inFlight < b.inFlight
	}
	return a.remaining > b.remaining
}

func (p *Pool) soonestReset() time.Time {
	var soonest time.Time
	for _, c := range p.creds {
		if soonest.IsZero() || c.reset.Before(soonest) {
			soonest = c.reset
		}
	}
	return soonest
}

// broadcast wakes every waiting Acquire. Callers hold p.mu.
func (p *Pool) broadcast() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func mask(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 8:
		return "****"
	default:
		return token[:4] + "****"
	}
}
