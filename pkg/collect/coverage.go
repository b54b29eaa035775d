package collect

import (
	"context"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkganalyzer/pkg/integrations/shields"
	"github.com/matzehuels/pkganalyzer/pkg/pkgdata"
)

// BadgeFetcher reads rendered badges from the badge service.
type BadgeFetcher interface {
	Badge(ctx context.Context, service, slug string) (*shields.Badge, error)
}

// coverageServices maps coverage services to their badge service path.
var coverageServices = map[string]string{
	ServiceCoveralls: "coveralls",
	ServiceCodecov:   "codecov/c/github",
}

// CoverageCollector reads the test coverage reported by coveralls or
// codecov through the badge service.
type CoverageCollector struct {
	Badges BadgeFetcher
	Logger *log.Logger
}

// Name implements Collector.
func (c *CoverageCollector) Name() string { return "coverage" }

// Collect implements Collector. Coverage is left absent when no badge is
// found or its value is not a percentage.
func (c *CoverageCollector) Collect(ctx context.Context, in *Input) (Apply, error) {
	service, slug, ok := coverageBadge(in)
	if !ok {
		return func(*Result) {}, nil
	}
	badge, err := c.Badges.Badge(ctx, coverageServices[service], slug)
	if err != nil {
		return nil, err
	}
	if badge == nil {
		return func(*Result) {}, nil
	}
	value, ok := parseCoverage(badge)
	if !ok {
		c.logger().Debug("unusable coverage badge", "service", service, "slug", slug, "value", string(badge.Value))
		return func(*Result) {}, nil
	}
	return func(r *Result) { r.Coverage = &value }, nil
}

func (c *CoverageCollector) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

// coverageBadge finds the coverage service and repository slug of a package:
// from a coverage badge in the README, or from a .coveralls.yml next to a
// GitHub repository.
func coverageBadge(in *Input) (service, slug string, ok bool) {
	for _, b := range readmeBadges(readme(in)) {
		if b.Type == BadgeCoverage && b.slug != "" {
			return b.Service, b.slug, true
		}
	}
	dir := in.Dir()
	if dir == "" || !exists(filepath.Join(dir, ".coveralls.yml")) {
		return "", "", false
	}
	if ref, found := repoRef(in); found && ref.IsGitHub() {
		return ServiceCoveralls, ref.Slug(), true
	}
	return "", "", false
}

func repoRef(in *Input) (pkgdata.RepoRef, bool) {
	if in.Downloaded != nil && in.Downloaded.Repo != nil {
		return *in.Downloaded.Repo, true
	}
	if in.Manifest != nil {
		return in.Manifest.RepoRef()
	}
	return pkgdata.RepoRef{}, false
}

// parseCoverage converts a badge value such as "94%" to a fraction.
func parseCoverage(b *shields.Badge) (float64, bool) {
	s, ok := b.StringValue()
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil || math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct / 100, true
}
