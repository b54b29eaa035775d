package collect

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pkganalyzer/pkg/download"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// Input is what collectors read. Collectors must not modify it.
type Input struct {
	Data       *pkgdata.Data
	Manifest   *pkgdata.Manifest
	Downloaded *download.Downloaded
}

// Dir returns the package root, or "" when nothing was downloaded.
func (in *Input) Dir() string {
	if in.Downloaded == nil {
		return ""
	}
	return in.Downloaded.Dir
}

// Apply writes one field of a Result.
type Apply func(*Result)

// Collector produces one signal. A non-nil error means the signal could not
// be produced; it aborts the collection only if it is unrecoverable.
type Collector interface {
	Name() string
	Collect(ctx context.Context, in *Input) (Apply, error)
}

// ToolRunner runs external tools.
type ToolRunner interface {
	Run(ctx context.Context, name, dir string, vars toolrun.Vars) (toolrun.Result, error)
}

// SourceDeps are the clients the default collectors use.
type SourceDeps struct {
	Runner ToolRunner
	Badges BadgeFetcher
	Logger *log.Logger
}

// Source runs collectors for one package and assembles their results.
type Source struct {
	collectors []Collector
	logger     *log.Logger
	// prep runs the lockfile tool before the collectors, when set.
	prep ToolRunner
}

// NewSource creates a Source with the default collectors. Collectors whose
// dependencies are missing are left out.
func NewSource(deps SourceDeps) *Source {
	collectors := []Collector{
		FilesCollector{},
		BadgesCollector{},
		LintersCollector{},
	}
	if deps.Badges != nil {
		collectors = append(collectors, &CoverageCollector{Badges: deps.Badges, Logger: deps.Logger})
	}
	if deps.Runner != nil {
		collectors = append(collectors,
			&OutdatedCollector{Runner: deps.Runner},
			&VulnerabilitiesCollector{Runner: deps.Runner},
		)
	}
	s := NewSourceWith(deps.Logger, collectors...)
	s.prep = deps.Runner
	return s
}

// NewSourceWith creates a Source running the given collectors. Their results
// are applied in the order given.
func NewSourceWith(logger *log.Logger, collectors ...Collector) *Source {
	if logger == nil {
		logger = log.Default()
	}
	return &Source{collectors: collectors, logger: logger}
}

// Collectors returns the collector names in application order.
func (s *Source) Collectors() []string {
	names := make([]string, len(s.collectors))
	for i, c := range s.collectors {
		names[i] = c.Name()
	}
	return names
}

// Collect runs all collectors concurrently. A collector that fails with a
// recoverable error leaves its field degraded; the first unrecoverable error
// cancels the others and is returned.
func (s *Source) Collect(ctx context.Context, data *pkgdata.Data, manifest *pkgdata.Manifest, downloaded *download.Downloaded) (*Result, error) {
	in := &Input{Data: data, Manifest: manifest, Downloaded: downloaded}
	if err := prepareLockfile(ctx, s.prep, in, s.logger); err != nil {
		return nil, err
	}
	applies := make([]Apply, len(s.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.collectors {
		g.Go(func() error {
			start := time.Now()
			apply, err := c.Collect(gctx, in)
			if err != nil {
				if perrors.IsUnrecoverable(err) {
					return err
				}
				if gctx.Err() == nil {
					s.logger.Warn("collector failed", "collector", c.Name(), "package", manifest.Name, "error", err)
				}
				return nil
			}
			s.logger.Debug("collected", "collector", c.Name(), "package", manifest.Name, "duration", time.Since(start))
			applies[i] = apply
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, apply := range applies {
		if apply != nil {
			apply(result)
		}
	}
	return result, nil
}
