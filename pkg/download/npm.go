package download

import (
	"context"
	"errors"
	"io"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

// NPM downloads the tarball published to the registry.
type NPM struct {
	Manifest *pkgdata.Manifest
	Deps     Deps
}

// Download implements Downloader.
func (n *NPM) Download(ctx context.Context, dir string) (*Downloaded, error) {
	url := n.Manifest.Dist.Tarball
	n.Deps.logger().Debug("downloading npm tarball", "package", n.Manifest.Name, "url", url)

	if err := resetDir(dir); err != nil {
		return nil, err
	}
	err := fetchAndExtract(ctx, &n.Deps, dir, func() (io.ReadCloser, error) {
		return n.Deps.NPM.Tarball(ctx, url)
	})
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		return nil, perrors.Unrecoverable(perrors.Wrap(perrors.ErrCodePackageNotFound, err, "tarball of %s is gone", n.Manifest))
	case perrors.Is(err, perrors.ErrCodeInvalidPath):
		return nil, perrors.Unrecoverable(err)
	case err != nil:
		return nil, err
	}

	return &Downloaded{Dir: dir, Source: SourceNPM, Manifest: readManifest(dir)}, nil
}
