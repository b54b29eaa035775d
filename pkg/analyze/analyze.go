// Package analyze runs the analysis of one package: it resolves the registry
// document, downloads the source, collects the signals and stores the
// outcome.
//
// Errors keep their class (see [perrors.ClassOf]). An unrecoverable error
// means retrying the job cannot help; any other error means the job should be
// retried later.
package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pkganalyzer/pkg/collect"
	"github.com/matzehuels/pkganalyzer/pkg/download"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
	"github.com/matzehuels/pkganalyzer/pkg/store"
)

// PackageFetcher reads registry documents.
type PackageFetcher interface {
	FetchPackage(ctx context.Context, name string, refresh bool) (*pkgdata.Data, error)
}

// Deps are the components an Analyzer drives. They are built once per
// process and shared by all jobs.
type Deps struct {
	Registry PackageFetcher
	Download download.Deps
	Source   *collect.Source
	// GitHub collects repository metadata. Nil skips it.
	GitHub *collect.GitHubCollector
	// Store receives the analyses. Nil discards them.
	Store store.Store
	// WorkDir holds the per-job source trees. Defaults to a directory in
	// os.TempDir.
	WorkDir string
	// KeepSources leaves source trees on disk after the job.
	KeepSources bool
	Logger      *log.Logger
	Now         func() time.Time
}

// Analyzer analyzes packages. It is safe for concurrent use.
type Analyzer struct {
	deps   Deps
	logger *log.Logger
	now    func() time.Time
}

// New creates an Analyzer.
func New(deps Deps) (*Analyzer, error) {
	if deps.Registry == nil {
		return nil, perrors.New(perrors.ErrCodeInvalidConfig, "analyzer needs a registry client")
	}
	if deps.Source == nil {
		return nil, perrors.New(perrors.ErrCodeInvalidConfig, "analyzer needs a source collector")
	}
	if deps.WorkDir == "" {
		deps.WorkDir = filepath.Join(os.TempDir(), "pkganalyzer")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Download.Logger == nil {
		deps.Download.Logger = deps.Logger
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Analyzer{deps: deps, logger: deps.Logger, now: deps.Now}, nil
}

// Analyze analyzes the latest version of a package. data is the registry
// document carried by the job; when nil it is fetched.
func (a *Analyzer) Analyze(ctx context.Context, name string, data *pkgdata.Data) (*store.Analysis, error) {
	started := a.now()
	logger := a.logger.With("package", name)

	if err := perrors.ValidateNpmPackageName(name); err != nil {
		return nil, perrors.Unrecoverable(err)
	}
	if data == nil {
		var err error
		data, err = a.deps.Registry.FetchPackage(ctx, name, true)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
	}
	manifest, err := pkgdata.ManifestFromData(name, data)
	if err != nil {
		return nil, err
	}
	logger = logger.With("version", manifest.Version)

	dir, cleanup, err := a.workDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	downloaded, err := download.Select(manifest, a.deps.Download).Download(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", manifest, err)
	}
	logger.Debug("downloaded", "source", downloaded.Source, "dir", downloaded.Dir)

	var (
		collected *collect.Result
		repo      *collect.Repository
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		collected, err = a.deps.Source.Collect(gctx, data, manifest, downloaded)
		return err
	})
	if a.deps.GitHub != nil {
		g.Go(func() error {
			var err error
			repo, err = a.deps.GitHub.Collect(gctx, manifest)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect %s: %w", manifest, err)
	}

	analysis := &store.Analysis{
		Name:       manifest.Name,
		Version:    manifest.Version,
		Source:     downloaded.Source,
		StartedAt:  started,
		FinishedAt: a.now(),
		Collected:  *collected,
		GitHub:     repo,
	}
	if a.deps.Store != nil {
		if err := a.deps.Store.Save(ctx, analysis); err != nil {
			return nil, perrors.Transient(err)
		}
	}
	logger.Info("analyzed", "source", analysis.Source, "duration", analysis.Duration().Round(time.Millisecond))
	return analysis, nil
}

// workDir creates a fresh directory for one job and returns the package
// root inside it.
func (a *Analyzer) workDir() (string, func(), error) {
	root := filepath.Join(a.deps.WorkDir, uuid.NewString())
	dir := filepath.Join(root, "package")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup := func() {
		if a.deps.KeepSources {
			return
		}
		if err := os.RemoveAll(root); err != nil {
			a.logger.Warn("failed to remove work dir", "dir", root, "error", err)
		}
	}
	return dir, cleanup, nil
}
