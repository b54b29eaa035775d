package download

import (
	"context"
	"errors"
	"io"

	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

// GitHub downloads the tarball of the published commit from the GitHub API.
type GitHub struct {
	Manifest *pkgdata.Manifest
	Repo     pkgdata.RepoRef
	Fallback Downloader
	Deps     Deps
}

// Download implements Downloader.
func (g *GitHub) Download(ctx context.Context, dir string) (*Downloaded, error) {
	logger := g.Deps.logger()
	ref := g.Manifest.GitHead
	logger.Debug("downloading github tarball", "package", g.Manifest.Name, "repo", g.Repo.Slug(), "ref", ref)

	if err := resetDir(dir); err != nil {
		return nil, err
	}
	err := fetchAndExtract(ctx, &g.Deps, dir, func() (io.ReadCloser, error) {
		return g.Deps.GitHub.Tarball(ctx, g.Repo.Owner, g.Repo.Name, ref)
	})
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		logger.Info("github repository or commit not found, using npm tarball", "repo", g.Repo.Slug(), "ref", ref)
		return g.Fallback.Download(ctx, dir)
	case err != nil && !isTransient(ctx, err):
		logger.Warn("github tarball unusable, using npm tarball", "repo", g.Repo.Slug(), "err", err)
		return g.Fallback.Download(ctx, dir)
	case err != nil:
		return nil, err
	}

	m := readManifest(dir)
	if m == nil || m.Name != g.Manifest.Name {
		// The package lives in a subdirectory (monorepo) or the repository
		// field points elsewhere.
		logger.Info("repository root is not the package, using npm tarball", "repo", g.Repo.Slug())
		return g.Fallback.Download(ctx, dir)
	}

	repo := g.Repo
	return &Downloaded{Dir: dir, Source: SourceGitHub, Repo: &repo, Ref: ref, Manifest: m}, nil
}
