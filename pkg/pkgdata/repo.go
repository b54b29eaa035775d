package pkgdata

import (
	"net/url"
	"regexp"
	"strings"
)

// Known repository hosts.
const (
	HostGitHub    = "github.com"
	HostGitLab    = "gitlab.com"
	HostBitbucket = "bitbucket.org"
)

// RepoRef identifies a source repository.
type RepoRef struct {
	Host  string
	Owner string
	Name  string
}

// Slug returns "owner/name".
func (r RepoRef) Slug() string { return r.Owner + "/" + r.Name }

// IsGitHub reports whether the repository is hosted on GitHub.
func (r RepoRef) IsGitHub() bool { return r.Host == HostGitHub }

// CloneURL returns an https URL suitable for git clone.
func (r RepoRef) CloneURL() string {
	return "https://" + r.Host + "/" + r.Slug() + ".git"
}

var shorthandHosts = map[string]string{
	"github":    HostGitHub,
	"gitlab":    HostGitLab,
	"bitbucket": HostBitbucket,
}

var (
	shorthandRe = regexp.MustCompile(`^(?:(github|gitlab|bitbucket):)?([\w.-]+)/([\w.-]+)$`)
	scpRe       = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+\.[a-z]{2,}):([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)
)

// ParseRepository extracts host, owner and name from the many shapes npm
// accepts in the repository field:
//
//	github:owner/repo, owner/repo, gitlab:owner/repo
//	git+https://github.com/owner/repo.git
//	git://github.com/owner/repo.git
//	git@github.com:owner/repo.git
//	git+ssh://git@github.com/owner/repo.git
func ParseRepository(raw string) (RepoRef, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RepoRef{}, false
	}
	if m := shorthandRe.FindStringSubmatch(s); m != nil {
		host := HostGitHub
		if m[1] != "" {
			host = shorthandHosts[m[1]]
		}
		return RepoRef{Host: host, Owner: m[2], Name: trimGit(m[3])}, true
	}
	if !strings.Contains(s, "://") {
		if m := scpRe.FindStringSubmatch(s); m != nil {
			return RepoRef{Host: strings.ToLower(m[1]), Owner: m[2], Name: trimGit(m[3])}, true
		}
	}

	s = strings.TrimPrefix(s, "git+")
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return RepoRef{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, false
	}
	name := trimGit(parts[1])
	if name == "" {
		return RepoRef{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return RepoRef{Host: host, Owner: parts[0], Name: name}, true
}

func trimGit(s string) string {
	return strings.TrimSuffix(s, ".git")
}

// RepoRef returns the parsed repository of the manifest.
func (m *Manifest) RepoRef() (RepoRef, bool) {
	if m.Repository == nil {
		return RepoRef{}, false
	}
	return ParseRepository(m.Repository.URL)
}
