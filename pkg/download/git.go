package download

import (
	"context"
	"path/filepath"

	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// Git clones repositories hosted outside GitHub and checks out the published
// commit.
type Git struct {
	Manifest *pkgdata.Manifest
	Repo     pkgdata.RepoRef
	Fallback Downloader
	Deps     Deps
}

// Download implements Downloader.
func (g *Git) Download(ctx context.Context, dir string) (*Downloaded, error) {
	logger := g.Deps.logger()
	url := g.Repo.CloneURL()
	ref := g.Manifest.GitHead
	logger.Debug("cloning repository", "package", g.Manifest.Name, "url", url, "ref", ref)

	if err := resetDir(dir); err != nil {
		return nil, err
	}
	res, err := g.Deps.Runner.Run(ctx, toolrun.ToolGitClone, filepath.Dir(dir), toolrun.Vars{
		toolrun.VarURL: url,
		toolrun.VarDir: dir,
	})
	if err != nil {
		return nil, err
	}
	if !res.Available {
		logger.Info("git clone unavailable, using npm tarball", "url", url)
		return g.fallback(ctx, dir)
	}

	if ref != "" {
		res, err := g.Deps.Runner.Run(ctx, toolrun.ToolGitCheckout, dir, toolrun.Vars{toolrun.VarRef: ref})
		if err != nil {
			return nil, err
		}
		if !res.Available {
			logger.Info("git checkout unavailable, using npm tarball", "url", url, "ref", ref)
			return g.fallback(ctx, dir)
		}
	}

	m := readManifest(dir)
	if m == nil || m.Name != g.Manifest.Name {
		logger.Info("repository root is not the package, using npm tarball", "url", url)
		return g.fallback(ctx, dir)
	}

	repo := g.Repo
	return &Downloaded{Dir: dir, Source: SourceGit, Repo: &repo, Ref: ref, Manifest: m}, nil
}

func (g *Git) fallback(ctx context.Context, dir string) (*Downloaded, error) {
	if err := resetDir(dir); err != nil {
		return nil, err
	}
	return g.Fallback.Download(ctx, dir)
}
