package collect

import (
	"context"
	"regexp"
	"strings"
)

// Badge services.
const (
	ServiceTravis        = "travis"
	ServiceCircleCI      = "circleci"
	ServiceAppVeyor      = "appveyor"
	ServiceGitHubActions = "githubactions"
	ServiceCoveralls     = "coveralls"
	ServiceCodecov       = "codecov"
	ServiceDavid         = "david"
	ServiceNPM           = "npm"
	ServiceGitHub        = "github"
)

// Badge types.
const (
	BadgeBuild           = "build"
	BadgeCoverage        = "coverage"
	BadgeDependencies    = "dependencies"
	BadgeDevDependencies = "devDependencies"
	BadgeVersion         = "version"
	BadgeDownloads       = "downloads"
	BadgeLicense         = "license"
)

// badgeRule recognizes the image URL of one kind of badge. When the pattern
// has owner and repo groups the badge refers to a GitHub repository.
type badgeRule struct {
	service string
	typ     string
	re      *regexp.Regexp
}

const ownerRepo = `(?P<owner>[\w.-]+)/(?P<repo>[\w.-]+?)`

var badgeRules = []badgeRule{
	{ServiceTravis, BadgeBuild, regexp.MustCompile(`^https?://(?:api\.)?travis-ci\.(?:org|com)/` + ownerRepo + `\.(?:svg|png)`)},
	{ServiceTravis, BadgeBuild, regexp.MustCompile(`^https?://img\.shields\.io/travis/(?:com/)?` + ownerRepo + `(?:/[^?]*)?(?:\.svg|\.png)?(?:\?|$)`)},
	{ServiceCircleCI, BadgeBuild, regexp.MustCompile(`^https?://(?:dl\.)?circleci\.com/(?:status-badge/img/)?gh/` + ownerRepo + `(?:/|\.svg|\.png)`)},
	{ServiceAppVeyor, BadgeBuild, regexp.MustCompile(`^https?://ci\.appveyor\.com/api/projects/status/`)},
	{ServiceAppVeyor, BadgeBuild, regexp.MustCompile(`^https?://img\.shields\.io/appveyor/(?:ci|build)/`)},
	{ServiceGitHubActions, BadgeBuild, regexp.MustCompile(`^https?://github\.com/` + ownerRepo + `/(?:actions/)?workflows/[^?]+/badge\.svg`)},
	{ServiceCoveralls, BadgeCoverage, regexp.MustCompile(`^https?://coveralls\.io/repos/(?:github/)?` + ownerRepo + `/badge\.(?:svg|png)`)},
	{ServiceCoveralls, BadgeCoverage, regexp.MustCompile(`^https?://img\.shields\.io/coveralls/(?:github/)?` + ownerRepo + `(?:/[^?]*)?(?:\.svg|\.png)?(?:\?|$)`)},
	{ServiceCodecov, BadgeCoverage, regexp.MustCompile(`^https?://codecov\.io/(?:gh|github)/` + ownerRepo + `/(?:branch/[^/]+/)?(?:graph/)?(?:badge|coverage)\.svg`)},
	{ServiceCodecov, BadgeCoverage, regexp.MustCompile(`^https?://img\.shields\.io/codecov/c/(?:github/)?` + ownerRepo + `(?:/[^?]*)?(?:\.svg|\.png)?(?:\?|$)`)},
	{ServiceDavid, BadgeDevDependencies, regexp.MustCompile(`^https?://david-dm\.org/` + ownerRepo + `/dev-status\.(?:svg|png)`)},
	{ServiceDavid, BadgeDependencies, regexp.MustCompile(`^https?://david-dm\.org/` + ownerRepo + `(?:/status)?\.(?:svg|png)`)},
	{ServiceDavid, BadgeDevDependencies, regexp.MustCompile(`^https?://img\.shields\.io/david/dev/` + ownerRepo + `(?:\.svg|\.png)?(?:\?|$)`)},
	{ServiceDavid, BadgeDependencies, regexp.MustCompile(`^https?://img\.shields\.io/david/` + ownerRepo + `(?:\.svg|\.png)?(?:\?|$)`)},
	{ServiceNPM, BadgeVersion, regexp.MustCompile(`^https?://img\.shields\.io/npm/v/`)},
	{ServiceNPM, BadgeVersion, regexp.MustCompile(`^https?://badge\.fury\.io/js/`)},
	{ServiceNPM, BadgeDownloads, regexp.MustCompile(`^https?://img\.shields\.io/npm/d[mwyt]/`)},
	{ServiceNPM, BadgeLicense, regexp.MustCompile(`^https?://img\.shields\.io/npm/l/`)},
	{ServiceGitHub, BadgeLicense, regexp.MustCompile(`^https?://img\.shields\.io/github/license/` + ownerRepo + `(?:\.svg|\.png)?(?:\?|$)`)},
}

// parsedBadge is a recognized badge and the repository it refers to.
type parsedBadge struct {
	Badge
	slug string
}

// parseBadge recognizes a badge image URL.
func parseBadge(url string) (parsedBadge, bool) {
	for _, rule := range badgeRules {
		m := rule.re.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		b := parsedBadge{Badge: Badge{URL: url, Service: rule.service, Type: rule.typ}}
		owner, repo := group(rule.re, m, "owner"), group(rule.re, m, "repo")
		if owner != "" && repo != "" {
			b.slug = owner + "/" + strings.TrimSuffix(repo, ".git")
		}
		return b, true
	}
	return parsedBadge{}, false
}

func group(re *regexp.Regexp, m []string, name string) string {
	if i := re.SubexpIndex(name); i > 0 && i < len(m) {
		return m[i]
	}
	return ""
}

// readmeBadges returns the badges of a README in order of appearance.
func readmeBadges(text string) []parsedBadge {
	var badges []parsedBadge
	for _, url := range imageURLs(text) {
		if b, ok := parseBadge(url); ok {
			badges = append(badges, b)
		}
	}
	return badges
}

// BadgesCollector lists the badges shown in the README.
type BadgesCollector struct{}

// Name implements Collector.
func (BadgesCollector) Name() string { return "badges" }

// Collect implements Collector.
func (BadgesCollector) Collect(_ context.Context, in *Input) (Apply, error) {
	parsed := readmeBadges(readme(in))
	badges := make([]Badge, len(parsed))
	for i, b := range parsed {
		badges[i] = b.Badge
	}
	return func(r *Result) {
		if len(badges) > 0 {
			r.Badges = badges
		}
	}, nil
}
