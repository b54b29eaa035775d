package collect

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	skipDirs = map[string]bool{"node_modules": true, ".git": true}
	testDirs = map[string]bool{
		"test": true, "tests": true, "spec": true, "specs": true,
		"__tests__": true, "__test__": true,
	}
	testFiles  = map[string]bool{"test.js": true, "tests.js": true, "spec.js": true}
	changelogs = []string{"changelog", "changes", "history", "releases"}
)

// FilesCollector measures the package tree: README size, test-suite size
// and the presence of a few well-known files.
type FilesCollector struct{}

// Name implements Collector.
func (FilesCollector) Name() string { return "files" }

// Collect implements Collector.
func (FilesCollector) Collect(ctx context.Context, in *Input) (Apply, error) {
	dir := in.Dir()
	if dir == "" {
		var files *Files
		if in.Data != nil && in.Data.Readme != "" {
			files = &Files{ReadmeSize: int64(len(in.Data.Readme))}
		}
		return func(r *Result) { r.Files = files }, nil
	}

	files := &Files{
		HasNpmIgnore:  exists(filepath.Join(dir, ".npmignore")),
		HasShrinkwrap: exists(filepath.Join(dir, "npm-shrinkwrap.json")),
		HasChangelog:  hasChangelog(dir),
	}
	if path, ok := readmeFile(dir); ok {
		if info, err := os.Stat(path); err == nil {
			files.ReadmeSize = info.Size()
		}
	} else if in.Data != nil {
		files.ReadmeSize = int64(len(in.Data.Readme))
	}

	size, err := testsSize(ctx, dir)
	if err != nil {
		return nil, err
	}
	files.TestsSize = size
	return func(r *Result) { r.Files = files }, nil
}

// testsSize sums the sizes of the regular files that belong to the test
// suite: everything under a test directory plus files named like tests.
func testsSize(ctx context.Context, root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !isTestFile(filepath.ToSlash(rel)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// isTestFile reports whether a slash-separated path relative to the package
// root is part of the test suite.
func isTestFile(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if testDirs[strings.ToLower(dir)] {
			return true
		}
	}
	name := strings.ToLower(parts[len(parts)-1])
	if testFiles[name] {
		return true
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(base, ".test") || strings.HasSuffix(base, ".spec") ||
		strings.HasSuffix(base, "_test") || strings.HasSuffix(base, "-test")
}

func hasChangelog(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := strings.ToLower(e.Name())
		name = strings.TrimSuffix(name, filepath.Ext(name))
		for _, c := range changelogs {
			if name == c {
				return true
			}
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
