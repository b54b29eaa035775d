// Package config loads worker configuration from the environment.
//
// Variables are read with github.com/caarlos0/env. A .env file in the working
// directory, when present, is loaded first. Tool definitions can be overridden
// from a TOML file named by TOOLS_FILE; see [LoadTools].
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

const (
	minConcurrency = 1
	maxConcurrency = 64
	maxToolRetries = 10
)

// Config is the worker configuration.
type Config struct {
	Queue QueueConfig `envPrefix:"QUEUE_"`
	Cache CacheConfig `envPrefix:"CACHE_"`

	// NPMAddr is the registry or CouchDB replica packuments are read from.
	NPMAddr string `env:"NPM_ADDR" envDefault:"https://registry.npmjs.org"`
	// NPMSAddr is the MongoDB URI analyses are written to.
	NPMSAddr string `env:"NPMS_ADDR" envDefault:"mongodb://localhost:27017/npms"`

	GitHubTokens  []string `env:"GITHUB_TOKENS" envSeparator:","`
	GitHubURL     string   `env:"GITHUB_URL" envDefault:"https://api.github.com"`
	WaitRateLimit bool     `env:"WAIT_RATE_LIMIT" envDefault:"true"`
	ShieldsURL    string   `env:"SHIELDS_URL" envDefault:"https://img.shields.io"`

	Concurrency  int           `env:"CONCURRENCY" envDefault:"2"`
	DrainTimeout time.Duration `env:"DRAIN_TIMEOUT" envDefault:"0s"`

	ToolRetries int           `env:"TOOL_RETRIES" envDefault:"3"`
	ToolBackoff time.Duration `env:"TOOL_BACKOFF" envDefault:"1s"`
	ToolsFile   string        `env:"TOOLS_FILE"`

	WorkDir     string `env:"WORK_DIR"`
	KeepSources bool   `env:"KEEP_SOURCES" envDefault:"false"`

	// StatusAddr is where the status server listens. Empty disables it.
	StatusAddr string `env:"STATUS_ADDR" envDefault:":9090"`
}

// QueueConfig locates the job queue.
type QueueConfig struct {
	URL         string `env:"URL" envDefault:"redis://localhost:6379/0"`
	Name        string `env:"NAME" envDefault:"analyze"`
	MaxAttempts int    `env:"MAX_ATTEMPTS" envDefault:"5"`
}

// CacheConfig selects the HTTP response cache. RedisURL wins over Dir; with
// neither set responses are not cached.
type CacheConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	Dir      string        `env:"DIR"`
	TTL      time.Duration `env:"TTL" envDefault:"1h"`
	// Prefix scopes keys so deployments can share one Redis.
	Prefix string `env:"PREFIX" envDefault:"pkganalyzer:"`
}

// Cache backends.
const (
	CacheRedis = "redis"
	CacheFile  = "file"
	CacheNone  = "none"
)

// Backend names the cache backend the configuration selects.
func (c CacheConfig) Backend() string {
	switch {
	case c.RedisURL != "":
		return CacheRedis
	case c.Dir != "":
		return CacheFile
	default:
		return CacheNone
	}
}

// Load reads .env (if present) and the process environment, then sanitizes
// and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return parse(env.Options{})
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "parse config")
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from the environment.
func (c *Config) Sanitize() {
	tokens := c.GitHubTokens[:0]
	for _, t := range c.GitHubTokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	c.GitHubTokens = tokens

	c.Concurrency = min(max(c.Concurrency, minConcurrency), maxConcurrency)
	c.ToolRetries = min(max(c.ToolRetries, 0), maxToolRetries)
	if c.ToolBackoff < 0 {
		c.ToolBackoff = 0
	}
	if c.DrainTimeout < 0 {
		c.DrainTimeout = 0
	}
	if c.Queue.MaxAttempts < 1 {
		c.Queue.MaxAttempts = 1
	}
	c.Queue.Name = strings.TrimSpace(c.Queue.Name)
	c.NPMAddr = strings.TrimRight(strings.TrimSpace(c.NPMAddr), "/")
	c.GitHubURL = strings.TrimRight(strings.TrimSpace(c.GitHubURL), "/")
	c.ShieldsURL = strings.TrimRight(strings.TrimSpace(c.ShieldsURL), "/")
}

// Validate reports every setting the worker cannot start with.
func (c *Config) Validate() error {
	var errs []error
	for name, u := range map[string]string{
		"NPM_ADDR":    c.NPMAddr,
		"GITHUB_URL":  c.GitHubURL,
		"SHIELDS_URL": c.ShieldsURL,
	} {
		if err := perrors.ValidateURL(u); err != nil {
			errs = append(errs, invalid("%s: %v", name, err))
		}
	}
	if !hasScheme(c.Queue.URL, "redis://", "rediss://", "unix://") {
		errs = append(errs, invalid("QUEUE_URL must be a redis URL, got %q", c.Queue.URL))
	}
	if c.Queue.Name == "" {
		errs = append(errs, invalid("QUEUE_NAME is empty"))
	}
	if !hasScheme(c.NPMSAddr, "mongodb://", "mongodb+srv://") {
		errs = append(errs, invalid("NPMS_ADDR must be a mongodb URI, got %q", c.NPMSAddr))
	}
	if c.Cache.RedisURL != "" && !hasScheme(c.Cache.RedisURL, "redis://", "rediss://", "unix://") {
		errs = append(errs, invalid("CACHE_REDIS_URL must be a redis URL, got %q", c.Cache.RedisURL))
	}
	return errors.Join(errs...)
}

// RetryPolicy is the retry policy for transient tool failures.
func (c *Config) RetryPolicy() httputil.Policy {
	return httputil.Policy{Delay: c.ToolBackoff, Multiplier: 2}.WithRetries(c.ToolRetries)
}

// Tools returns the built-in tool definitions merged with TOOLS_FILE.
func (c *Config) Tools() ([]toolrun.Tool, error) {
	if c.ToolsFile == "" {
		return toolrun.DefaultTools(), nil
	}
	return LoadTools(c.ToolsFile)
}

func invalid(format string, args ...any) error {
	return perrors.New(perrors.ErrCodeInvalidConfig, format, args...)
}

func hasScheme(s string, schemes ...string) bool {
	for _, p := range schemes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
