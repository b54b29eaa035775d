package collect

import (
	"context"
	"errors"
	"fmt"
	"testing"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/integrations"
	"github.com/matzehuels/pkganalyzer/pkg/integrations/github"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

type fakeRepos struct {
	repo  *github.Repository
	err   error
	calls []string
}

func (f *fakeRepos) Repository(_ context.Context, owner, repo string, _ bool) (*github.Repository, error) {
	f.calls = append(f.calls, owner+"/"+repo)
	return f.repo, f.err
}

func manifestWithRepo(url string) *pkgdata.Manifest {
	return &pkgdata.Manifest{Name: "pkg", Version: "1.0.0", Repository: &pkgdata.Repository{Type: "git", URL: url}}
}

func TestGitHubCollector(t *testing.T) {
	repos := &fakeRepos{repo: &github.Repository{FullName: "owner/repo", Stars: 42}}
	c := &GitHubCollector{Client: repos}

	repo, err := c.Collect(context.Background(), manifestWithRepo("git+https://github.com/owner/repo.git"))
	if err != nil {
		t.Fatal(err)
	}
	if repo == nil || repo.Stars != 42 {
		t.Errorf("repo = %+v", repo)
	}
	if len(repos.calls) != 1 || repos.calls[0] != "owner/repo" {
		t.Errorf("calls = %v", repos.calls)
	}
}

func TestGitHubCollectorSkips(t *testing.T) {
	repos := &fakeRepos{}
	c := &GitHubCollector{Client: repos}

	for _, m := range []*pkgdata.Manifest{
		{Name: "none"},
		manifestWithRepo("https://gitlab.com/owner/repo"),
	} {
		repo, err := c.Collect(context.Background(), m)
		if repo != nil || err != nil {
			t.Errorf("%s: repo = %v, err = %v", m.Name, repo, err)
		}
	}
	if len(repos.calls) != 0 {
		t.Errorf("calls = %v", repos.calls)
	}
}

func TestGitHubCollectorErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"not found", fmt.Errorf("%w: github repo owner/repo", integrations.ErrNotFound), false},
		{"network", integrations.ErrNetwork, false},
		{"unrecoverable", perrors.Unrecoverable(errors.New("broken")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &GitHubCollector{Client: &fakeRepos{err: tt.err}}
			repo, err := c.Collect(context.Background(), manifestWithRepo("owner/repo"))
			if repo != nil {
				t.Errorf("repo = %+v, want nil", repo)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
