// Package archive unpacks source tarballs into a working directory.
//
// Both the npm registry ("package/...") and GitHub ("owner-repo-sha/...") wrap
// their tarball contents in a single top-level directory. [ExtractTarGz]
// strips it so the package root lands directly in the target directory.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
)

// DefaultMaxBytes caps the total uncompressed size of an archive.
const DefaultMaxBytes int64 = 512 << 20

// ErrTooLarge is returned when an archive exceeds the size limit.
var ErrTooLarge = errors.New("archive exceeds size limit")

// Options tune extraction.
type Options struct {
	// MaxBytes caps the uncompressed size. Zero means DefaultMaxBytes.
	MaxBytes int64
	// KeepTopLevel disables stripping of the first path component.
	KeepTopLevel bool
}

// Stats summarizes an extraction.
type Stats struct {
	Files int
	Bytes int64
}

// ExtractTarGz reads a gzip-compressed tarball from r into dir. Entries that
// would land outside dir are rejected with an INVALID_PATH error. Links and
// special files are skipped.
func ExtractTarGz(r io.Reader, dir string, opts Options) (Stats, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return Stats{}, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()
	return ExtractTar(gz, dir, opts)
}

// ExtractTar is [ExtractTarGz] for an uncompressed stream.
func ExtractTar(r io.Reader, dir string, opts Options) (Stats, error) {
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stats{}, err
	}

	var stats Stats
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read tar: %w", err)
		}

		name, ok, err := entryPath(hdr.Name, !opts.KeepTopLevel)
		if err != nil {
			return stats, err
		}
		if !ok {
			continue
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, err
			}
		case tar.TypeReg:
			if stats.Bytes+hdr.Size > limit {
				return stats, fmt.Errorf("%w: %d bytes", ErrTooLarge, limit)
			}
			n, err := writeFile(target, tr, hdr.Size)
			if err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += n
		default:
			// Symlinks, hard links and devices are never needed for analysis.
		}
	}
}

// entryPath normalizes an entry name and optionally strips its first
// component. ok is false for entries that have nothing left after stripping.
func entryPath(name string, strip bool) (string, bool, error) {
	clean := strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
	if strip {
		i := strings.IndexByte(clean, '/')
		if i < 0 {
			return "", false, nil
		}
		clean = clean[i+1:]
	}
	clean = path.Clean(clean)
	if clean == "" || clean == "." {
		return "", false, nil
	}
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", false, perrors.New(perrors.ErrCodeInvalidPath, "archive entry escapes target directory: %q", name)
	}
	return filepath.FromSlash(clean), true, nil
}

func writeFile(target string, r io.Reader, size int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyN(f, r, size)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}
	return n, nil
}
