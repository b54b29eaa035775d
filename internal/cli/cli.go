// Package cli implements the pkganalyzer command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pkganalyzer/pkg/buildinfo"
	"github.com/matzehuels/pkganalyzer/pkg/cache"
	"github.com/matzehuels/pkganalyzer/pkg/config"
)

// appName is the application name used for directories and display.
const appName = "pkganalyzer"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "pkganalyzer collects quality signals for npm packages",
		Long: `pkganalyzer is a worker that consumes package analysis jobs from a queue
and collects repository metadata, test footprint, coverage, outdated
dependencies and known vulnerabilities for each package.

Configuration is read from the environment (and a .env file, if present).`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.consumeCommand())
	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.enqueueCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())

	return root
}

// =============================================================================
// Cache Factory
// =============================================================================

// newCache opens the configured response cache. When fallbackDir is set and
// no backend is configured, a file cache in that directory is used.
func newCache(ctx context.Context, cfg config.CacheConfig, fallbackDir string) (cache.Cache, error) {
	if cfg.Backend() == config.CacheNone && fallbackDir != "" {
		cfg.Dir = fallbackDir
	}
	switch cfg.Backend() {
	case config.CacheRedis:
		c, err := cache.DialRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheFile:
		return cache.NewFileCache(cfg.Dir)
	default:
		return cache.NewNullCache(), nil
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/pkganalyzer/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
