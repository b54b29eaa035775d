package collect

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// lockfileNames are the files npm reads a resolved dependency tree from.
var lockfileNames = []string{"package-lock.json", "npm-shrinkwrap.json"}

// toolLookup is implemented by runners that can report their configured tools.
type toolLookup interface {
	Tool(name string) (toolrun.Tool, bool)
}

// prepareLockfile resolves a lockfile for a package downloaded without one,
// so the dependency tools audit the resolved tree. Runners without a lockfile
// tool skip the step. A failure is logged and left for the dependency tools
// to degrade on; only an unrecoverable one is returned.
func prepareLockfile(ctx context.Context, runner ToolRunner, in *Input, logger *log.Logger) error {
	dir := in.Dir()
	if runner == nil || dir == "" {
		return nil
	}
	for _, name := range lockfileNames {
		if exists(filepath.Join(dir, name)) {
			return nil
		}
	}
	if tl, ok := runner.(toolLookup); ok {
		if _, ok := tl.Tool(toolrun.ToolLockfile); !ok {
			return nil
		}
	}

	res, err := runner.Run(ctx, toolrun.ToolLockfile, dir, toolrun.Vars{toolrun.VarDir: dir})
	switch {
	case perrors.IsUnrecoverable(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		logger.Warn("lockfile not resolved", "package", in.Manifest.Name, "error", err)
	case !res.Available:
		logger.Warn("lockfile unavailable, dependency tools may degrade", "package", in.Manifest.Name)
	}
	return nil
}
