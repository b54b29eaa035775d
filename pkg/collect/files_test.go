package collect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/pkganalyzer/pkg/download"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

func TestIsTestFile(t *testing.T) {
	tests := map[string]bool{
		"test/index.js":              true,
		"tests/unit/a.js":            true,
		"lib/__tests__/a.js":         true,
		"spec/helpers.js":            true,
		"Test/a.js":                  true,
		"test.js":                    true,
		"lib/parse.test.js":          true,
		"lib/parse.spec.ts":          true,
		"lib/parse_test.js":          true,
		"index.js":                   false,
		"lib/testing.js":             false,
		"lib/contest/a.js":           false,
		"docs/test-plan.md":          false,
		"packages/a/test/fixtures/x": true,
	}
	for rel, want := range tests {
		if got := isTestFile(rel); got != want {
			t.Errorf("isTestFile(%q) = %v, want %v", rel, got, want)
		}
	}
}

func TestFilesCollector(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("Readme.markdown", "12345")
	write("README.txt", "ignored")
	write("History.md", "## 1.0.0")
	write("npm-shrinkwrap.json", "{}")
	write("index.js", "module.exports = 1;")
	write("test/a.js", "1234567890")
	write("lib/b.spec.js", "12345")
	write("node_modules/dep/test/c.js", "not counted")
	write(".git/test/d", "not counted")

	in := &Input{Downloaded: &download.Downloaded{Dir: dir}}
	apply, err := FilesCollector{}.Collect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	var r Result
	apply(&r)

	want := Files{ReadmeSize: 5, TestsSize: 15, HasShrinkwrap: true, HasChangelog: true}
	if r.Files == nil || *r.Files != want {
		t.Errorf("Files = %+v, want %+v", r.Files, want)
	}
}

func TestFilesCollectorWithoutReadme(t *testing.T) {
	in := &Input{
		Data:       &pkgdata.Data{Readme: "from the registry"},
		Downloaded: &download.Downloaded{Dir: t.TempDir()},
	}
	apply, err := FilesCollector{}.Collect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	var r Result
	apply(&r)
	if r.Files == nil || r.Files.ReadmeSize != int64(len("from the registry")) {
		t.Errorf("Files = %+v", r.Files)
	}
}

func TestFilesCollectorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := &Input{Downloaded: &download.Downloaded{Dir: t.TempDir()}}
	if _, err := (FilesCollector{}).Collect(ctx, in); err == nil {
		t.Error("expected error for cancelled context")
	}
}
