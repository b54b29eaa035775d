package collect

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/integrations/github"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

// Repository is the repository metadata recorded for a package.
type Repository = github.Repository

// RepositoryFetcher reads repository metadata.
type RepositoryFetcher interface {
	Repository(ctx context.Context, owner, repo string, refresh bool) (*github.Repository, error)
}

// GitHubCollector reads the metadata of the GitHub repository of a package.
type GitHubCollector struct {
	Client RepositoryFetcher
	// Refresh bypasses cached metadata.
	Refresh bool
	Logger  *log.Logger
}

// Collect returns the repository metadata, or nil when the package has no
// GitHub repository or the repository is gone. Failures other than
// cancellation and unrecoverable errors are logged and yield nil.
func (c *GitHubCollector) Collect(ctx context.Context, manifest *pkgdata.Manifest) (*Repository, error) {
	ref, ok := manifest.RepoRef()
	if !ok || !ref.IsGitHub() {
		return nil, nil
	}
	repo, err := c.Client.Repository(ctx, ref.Owner, ref.Name, c.Refresh)
	switch {
	case err == nil:
		return repo, nil
	case perrors.IsUnrecoverable(err):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, integrations.ErrNotFound):
		c.logger().Debug("github repository not found", "package", manifest.Name, "repo", ref.Slug())
		return nil, nil
	default:
		c.logger().Warn("github metadata unavailable", "package", manifest.Name, "repo", ref.Slug(), "error", err)
		return nil, nil
	}
}

func (c *GitHubCollector) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}
