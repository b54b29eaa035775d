// Package download fetches the source of a package into a working directory.
//
// Three strategies exist, chosen from the provenance recorded in the
// package.json by [Select]:
//
//   - [GitHub]: the tarball of the published commit, through the API
//   - [Git]: git clone + checkout of the published commit, for other hosts
//   - [NPM]: the tarball published to the registry
//
// GitHub and Git fall back to NPM when the repository or commit is gone or
// does not contain the package (monorepos). A published tarball that is gone
// from the registry is unrecoverable.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkganalyzer/pkg/archive"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// Download sources.
const (
	SourceGitHub = "github"
	SourceGit    = "git"
	SourceNPM    = "npm"
)

// Downloaded describes the fetched source tree.
type Downloaded struct {
	// Dir is the package root, the directory holding package.json.
	Dir string
	// Source is the strategy that produced the tree.
	Source string
	// Repo is the source repository when the tree came from it.
	Repo *pkgdata.RepoRef
	// Ref is the commit that was fetched, if known.
	Ref string
	// Manifest is the package.json found in Dir, nil if absent.
	Manifest *pkgdata.Manifest
}

// Downloader fetches a package into dir.
type Downloader interface {
	Download(ctx context.Context, dir string) (*Downloaded, error)
}

// TarballFetcher opens registry tarballs by URL.
type TarballFetcher interface {
	Tarball(ctx context.Context, url string) (io.ReadCloser, error)
}

// RepoTarballFetcher opens repository tarballs at a ref.
type RepoTarballFetcher interface {
	Tarball(ctx context.Context, owner, repo, ref string) (io.ReadCloser, error)
}

// ToolRunner runs external tools.
type ToolRunner interface {
	Run(ctx context.Context, name, dir string, vars toolrun.Vars) (toolrun.Result, error)
}

// Deps are the clients downloaders use. Any of GitHub and Runner may be nil;
// the strategies that need them are then skipped.
type Deps struct {
	NPM    TarballFetcher
	GitHub RepoTarballFetcher
	Runner ToolRunner
	// Policy bounds retries of transient fetch failures.
	Policy httputil.Policy
	// MaxBytes caps the extracted size.
	MaxBytes int64
	Logger   *log.Logger
}

func (d *Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}

func (d *Deps) policy() httputil.Policy {
	if d.Policy.Attempts == 0 {
		return httputil.DefaultPolicy
	}
	return d.Policy
}

// Select picks the strategy for m.
func Select(m *pkgdata.Manifest, deps Deps) Downloader {
	npm := &NPM{Manifest: m, Deps: deps}
	ref, ok := m.RepoRef()
	switch {
	case !ok:
		return npm
	case ref.IsGitHub() && deps.GitHub != nil:
		return &GitHub{Manifest: m, Repo: ref, Fallback: npm, Deps: deps}
	case !ref.IsGitHub() && deps.Runner != nil:
		return &Git{Manifest: m, Repo: ref, Fallback: npm, Deps: deps}
	default:
		return npm
	}
}

// fetchAndExtract downloads with open and unpacks into dir, retrying
// transient failures.
func fetchAndExtract(ctx context.Context, deps *Deps, dir string, open func() (io.ReadCloser, error)) error {
	return deps.policy().Do(ctx, func(attempt int) error {
		if attempt > 0 {
			if err := resetDir(dir); err != nil {
				return err
			}
		}
		body, err := open()
		if err != nil {
			return err
		}
		defer body.Close()

		_, err = archive.ExtractTarGz(body, dir, archive.Options{MaxBytes: deps.MaxBytes})
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return &httputil.RetryableError{Err: err}
		}
		return err
	})
}

// isTransient reports whether err is worth retrying the whole job for.
func isTransient(ctx context.Context, err error) bool {
	return ctx.Err() != nil || httputil.IsRetryable(err) || perrors.IsTransient(err)
}

// readManifest loads dir/package.json. A missing or malformed file yields nil.
func readManifest(dir string) *pkgdata.Manifest {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil
	}
	var m pkgdata.Manifest
	if json.Unmarshal(data, &m) != nil {
		return nil
	}
	return &m
}

// resetDir empties dir, keeping the directory itself.
func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
