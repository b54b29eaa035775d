package download

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

func tarGz(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: top + "/" + name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(body))
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

type fakeNPM struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeNPM) Tarball(_ context.Context, url string) (io.ReadCloser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fakeGitHub struct {
	data    []byte
	errs    []error
	calls   int
	gotRef  string
	gotRepo string
}

func (f *fakeGitHub) Tarball(_ context.Context, owner, repo, ref string) (io.ReadCloser, error) {
	f.calls++
	f.gotRepo, f.gotRef = owner+"/"+repo, ref
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fakeRunner struct {
	mu      sync.Mutex
	results map[string]toolrun.Result
	files   map[string]string
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name, dir string, vars toolrun.Vars) (toolrun.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	res := f.results[name]
	if name == toolrun.ToolGitClone && res.Available {
		for p, body := range f.files {
			full := filepath.Join(vars[toolrun.VarDir], p)
			os.MkdirAll(filepath.Dir(full), 0o755)
			os.WriteFile(full, []byte(body), 0o644)
		}
	}
	return res, nil
}

var fastPolicy = httputil.Policy{Attempts: 3, Delay: time.Millisecond}

func manifest(repo string) *pkgdata.Manifest {
	m := &pkgdata.Manifest{
		Name:    "cross-spawn",
		Version: "2.1.5",
		GitHead: "b5239f2",
		Dist:    pkgdata.Dist{Tarball: "https://registry.npmjs.org/cross-spawn/-/cross-spawn-2.1.5.tgz"},
	}
	if repo != "" {
		m.Repository = &pkgdata.Repository{Type: "git", URL: repo}
	}
	return m
}

func TestSelect(t *testing.T) {
	deps := Deps{NPM: &fakeNPM{}, GitHub: &fakeGitHub{}, Runner: &fakeRunner{}}

	tests := []struct {
		repo string
		deps Deps
		want string
	}{
		{"git://github.com/IndigoUnited/node-cross-spawn.git", deps, "*download.GitHub"},
		{"https://gitlab.com/group/project.git", deps, "*download.Git"},
		{"", deps, "*download.NPM"},
		{"git://github.com/owner/repo.git", Deps{NPM: &fakeNPM{}}, "*download.NPM"},
	}
	for _, tt := range tests {
		got := Select(manifest(tt.repo), tt.deps)
		if name := typeName(got); name != tt.want {
			t.Errorf("Select(%q) = %s, want %s", tt.repo, name, tt.want)
		}
	}
}

func typeName(d Downloader) string {
	switch d.(type) {
	case *GitHub:
		return "*download.GitHub"
	case *Git:
		return "*download.Git"
	case *NPM:
		return "*download.NPM"
	}
	return "unknown"
}

func TestGitHubDownload(t *testing.T) {
	gh := &fakeGitHub{data: tarGz(t, "IndigoUnited-node-cross-spawn-b5239f2", map[string]string{
		"package.json": `{"name":"cross-spawn"}`,
		"test/test.js": "it()",
	})}
	npm := &fakeNPM{}
	m := manifest("git://github.com/IndigoUnited/node-cross-spawn.git")
	d := Select(m, Deps{NPM: npm, GitHub: gh, Policy: fastPolicy})

	dir := t.TempDir()
	got, err := d.Download(context.Background(), dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got.Source != SourceGitHub || got.Dir != dir || got.Ref != "b5239f2" {
		t.Errorf("downloaded = %+v", got)
	}
	if gh.gotRepo != "IndigoUnited/node-cross-spawn" || gh.gotRef != "b5239f2" {
		t.Errorf("fetched %s@%s", gh.gotRepo, gh.gotRef)
	}
	if npm.calls != 0 {
		t.Error("npm should not be used")
	}
	if _, err := os.Stat(filepath.Join(dir, "test", "test.js")); err != nil {
		t.Errorf("test/test.js missing: %v", err)
	}
}

func TestGitHubFallsBackToNPM(t *testing.T) {
	npmTarball := tarGz(t, "package", map[string]string{"package.json": `{"name":"cross-spawn"}`})

	tests := []struct {
		name string
		gh   *fakeGitHub
	}{
		{"not found", &fakeGitHub{errs: []error{integrations.ErrNotFound}}},
		{"monorepo", &fakeGitHub{data: tarGz(t, "repo", map[string]string{"package.json": `{"name":"root"}`})}},
		{"forbidden", &fakeGitHub{errs: []error{integrations.CheckStatus(403)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			npm := &fakeNPM{data: npmTarball}
			m := manifest("github:IndigoUnited/node-cross-spawn")
			d := Select(m, Deps{NPM: npm, GitHub: tt.gh, Policy: fastPolicy})

			got, err := d.Download(context.Background(), t.TempDir())
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			if got.Source != SourceNPM || npm.calls != 1 {
				t.Errorf("source = %s, npm calls = %d", got.Source, npm.calls)
			}
			if got.Manifest == nil || got.Manifest.Name != "cross-spawn" {
				t.Errorf("manifest = %+v", got.Manifest)
			}
		})
	}
}

func TestGitHubRetriesTransient(t *testing.T) {
	gh := &fakeGitHub{
		errs: []error{integrations.CheckStatus(502), nil},
		data: tarGz(t, "top", map[string]string{"package.json": `{"name":"cross-spawn"}`}),
	}
	d := Select(manifest("github:a/b"), Deps{NPM: &fakeNPM{}, GitHub: gh, Policy: fastPolicy})

	got, err := d.Download(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got.Source != SourceGitHub || gh.calls != 2 {
		t.Errorf("source = %s, calls = %d", got.Source, gh.calls)
	}
}

func TestGitHubTransientExhaustedIsError(t *testing.T) {
	gh := &fakeGitHub{errs: []error{
		integrations.CheckStatus(503), integrations.CheckStatus(503), integrations.CheckStatus(503),
	}}
	npm := &fakeNPM{}
	d := Select(manifest("github:a/b"), Deps{NPM: npm, GitHub: gh, Policy: fastPolicy})

	_, err := d.Download(context.Background(), t.TempDir())
	if err == nil || !httputil.IsRetryable(err) {
		t.Errorf("err = %v, want retryable", err)
	}
	if npm.calls != 0 {
		t.Error("transient failures should not fall back")
	}
}

func TestNPMTarballGoneIsUnrecoverable(t *testing.T) {
	npm := &fakeNPM{err: integrations.ErrNotFound}
	d := Select(manifest(""), Deps{NPM: npm, Policy: fastPolicy})

	_, err := d.Download(context.Background(), t.TempDir())
	if !perrors.IsUnrecoverable(err) {
		t.Errorf("err = %v, want unrecoverable", err)
	}
}

func TestGitDownload(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]toolrun.Result{
			toolrun.ToolGitClone:    {Available: true},
			toolrun.ToolGitCheckout: {Available: true},
		},
		files: map[string]string{"package.json": `{"name":"cross-spawn"}`},
	}
	d := Select(manifest("gitlab:group/cross-spawn"), Deps{NPM: &fakeNPM{}, Runner: runner})

	dir := filepath.Join(t.TempDir(), "source")
	got, err := d.Download(context.Background(), dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got.Source != SourceGit || got.Repo.Host != pkgdata.HostGitLab {
		t.Errorf("downloaded = %+v", got)
	}
	if len(runner.calls) != 2 || runner.calls[1] != toolrun.ToolGitCheckout {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestGitCloneUnavailableFallsBack(t *testing.T) {
	runner := &fakeRunner{results: map[string]toolrun.Result{toolrun.ToolGitClone: toolrun.Unavailable}}
	npm := &fakeNPM{data: tarGz(t, "package", map[string]string{"package.json": `{"name":"cross-spawn"}`})}
	d := Select(manifest("https://bitbucket.org/owner/cross-spawn"), Deps{NPM: npm, Runner: runner, Policy: fastPolicy})

	got, err := d.Download(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got.Source != SourceNPM {
		t.Errorf("source = %s, want npm", got.Source)
	}
}

func TestResetDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "stale"), []byte("x"), 0o644)
	os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0o755)

	if err := resetDir(dir); err != nil {
		t.Fatalf("resetDir: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dir not empty: %v", entries)
	}

	missing := filepath.Join(dir, "new")
	if err := resetDir(missing); err != nil {
		t.Fatalf("resetDir(missing): %v", err)
	}
	if _, err := os.Stat(missing); errors.Is(err, os.ErrNotExist) {
		t.Error("resetDir should create a missing dir")
	}
}
