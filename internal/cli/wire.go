package cli

import (
	"github.com/matzehuels/pkganalyzer/pkg/analyze"
	"github.com/matzehuels/pkganalyzer/pkg/cache"
	"github.com/matzehuels/pkganalyzer/pkg/collect"
	"github.com/matzehuels/pkganalyzer/pkg/config"
	"github.com/matzehuels/pkganalyzer/pkg/download"
	"github.com/matzehuels/pkganalyzer/pkg/integrations/github"
	"github.com/matzehuels/pkganalyzer/pkg/integrations/npm"
	"github.com/matzehuels/pkganalyzer/pkg/integrations/shields"
	"github.com/matzehuels/pkganalyzer/pkg/store"
	"github.com/matzehuels/pkganalyzer/pkg/tokens"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// worker bundles the process-wide dependencies of an analyzer. It is built
// once and shared by every job.
type worker struct {
	pool     *tokens.Pool
	analyzer *analyze.Analyzer
}

// newWorker builds a worker from cfg. refresh bypasses cached repository
// metadata.
func (c *CLI) newWorker(cfg *config.Config, cch cache.Cache, st store.Store, refresh bool) (*worker, error) {
	if len(cfg.GitHubTokens) == 0 {
		c.Logger.Warn("no GITHUB_TOKENS configured, using unauthenticated GitHub access")
	}
	pool, err := tokens.New(cfg.GitHubTokens, tokens.Options{
		WaitOnRateLimit:      cfg.WaitRateLimit,
		AllowUnauthenticated: len(cfg.GitHubTokens) == 0,
		Logger:               c.Logger,
	})
	if err != nil {
		return nil, err
	}

	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), cfg.Cache.Prefix)
	gh, err := github.NewClient(github.Options{BaseURL: cfg.GitHubURL, Pool: pool, Cache: cch, TTL: cfg.Cache.TTL})
	if err != nil {
		return nil, err
	}
	gh.SetKeyer(keyer)
	registry := npm.NewClient(npm.Options{BaseURL: cfg.NPMAddr, Cache: cch, TTL: cfg.Cache.TTL})
	registry.SetKeyer(keyer)
	badges := shields.NewClient(shields.Options{BaseURL: cfg.ShieldsURL, Cache: cch, TTL: cfg.Cache.TTL})
	badges.SetKeyer(keyer)

	tools, err := cfg.Tools()
	if err != nil {
		return nil, err
	}
	runner := toolrun.NewRunner(tools, toolrun.Options{Policy: cfg.RetryPolicy(), Logger: c.Logger})

	analyzer, err := analyze.New(analyze.Deps{
		Registry: registry,
		Download: download.Deps{
			NPM:    registry,
			GitHub: gh,
			Runner: runner,
			Logger: c.Logger,
		},
		Source: collect.NewSource(collect.SourceDeps{
			Runner: runner,
			Badges: badges,
			Logger: c.Logger,
		}),
		GitHub: &collect.GitHubCollector{
			Client:  gh,
			Refresh: refresh,
			Logger:  c.Logger,
		},
		Store:       st,
		WorkDir:     cfg.WorkDir,
		KeepSources: cfg.KeepSources,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &worker{pool: pool, analyzer: analyzer}, nil
}
