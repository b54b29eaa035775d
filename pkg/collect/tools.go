package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// OutdatedCollector lists the dependencies behind their latest release
// using the "outdated" tool. The tool prints a JSON object keyed by
// dependency name. Entries whose declared range already admits the latest
// release (wanted equals latest) are not outdated: nothing is installed, so
// npm reports every dependency as missing.
type OutdatedCollector struct {
	Runner ToolRunner
	// Tool defaults to [toolrun.ToolOutdated].
	Tool string
}

// Name implements Collector.
func (c *OutdatedCollector) Name() string { return "outdatedDependencies" }

// Collect implements Collector.
func (c *OutdatedCollector) Collect(ctx context.Context, in *Input) (Apply, error) {
	res, err := runTool(ctx, c.Runner, c.Tool, toolrun.ToolOutdated, in)
	if err != nil || !res.Available {
		return nil, err
	}
	deps, err := parseOutdated(res.Output)
	if err != nil {
		return nil, err
	}
	return func(r *Result) { r.Outdated = Outdated{Known: true, Deps: deps} }, nil
}

func parseOutdated(out json.RawMessage) (map[string]json.RawMessage, error) {
	deps := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(out)) == 0 {
		return deps, nil
	}
	if err := json.Unmarshal(out, &deps); err != nil {
		return nil, fmt.Errorf("outdated output: %w", err)
	}
	if err := toolError(deps["error"]); err != nil {
		return nil, err
	}
	for name, raw := range deps {
		var v struct {
			Wanted string `json:"wanted"`
			Latest string `json:"latest"`
		}
		if json.Unmarshal(raw, &v) == nil && v.Wanted != "" && v.Wanted == v.Latest {
			delete(deps, name)
		}
	}
	return deps, nil
}

// toolError recognizes the {"error":{"code":...,"summary":...}} object npm
// prints instead of a report when it failed.
func toolError(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var e struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
	}
	if json.Unmarshal(raw, &e) != nil || e.Code == "" && e.Summary == "" {
		return nil
	}
	return fmt.Errorf("tool reported %s: %s", e.Code, e.Summary)
}

// VulnerabilitiesCollector lists known vulnerabilities of the dependencies
// using the "vulnerabilities" tool. The tool prints either a JSON array of
// findings or an npm audit report.
type VulnerabilitiesCollector struct {
	Runner ToolRunner
	// Tool defaults to [toolrun.ToolVulnerabilities].
	Tool string
}

// Name implements Collector.
func (c *VulnerabilitiesCollector) Name() string { return "dependenciesVulnerabilities" }

// Collect implements Collector.
func (c *VulnerabilitiesCollector) Collect(ctx context.Context, in *Input) (Apply, error) {
	res, err := runTool(ctx, c.Runner, c.Tool, toolrun.ToolVulnerabilities, in)
	if err != nil || !res.Available {
		return nil, err
	}
	items, err := parseVulnerabilities(res.Output)
	if err != nil {
		return nil, err
	}
	return func(r *Result) { r.Vulnerabilities = Vulnerabilities{Known: true, Items: items} }, nil
}

// auditReport is the part of an npm audit report that lists findings.
type auditReport struct {
	Vulnerabilities map[string]json.RawMessage `json:"vulnerabilities"`
	Advisories      map[string]json.RawMessage `json:"advisories"`
	Error           json.RawMessage            `json:"error"`
}

func parseVulnerabilities(out json.RawMessage) ([]json.RawMessage, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return []json.RawMessage{}, nil
	}
	if out[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(out, &items); err != nil {
			return nil, fmt.Errorf("vulnerabilities output: %w", err)
		}
		return items, nil
	}

	var report auditReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("vulnerabilities output: %w", err)
	}
	if err := toolError(report.Error); err != nil {
		return nil, err
	}
	findings := report.Vulnerabilities
	if len(findings) == 0 {
		findings = report.Advisories
	}
	keys := make([]string, 0, len(findings))
	for k := range findings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		items = append(items, findings[k])
	}
	return items, nil
}

func runTool(ctx context.Context, runner ToolRunner, name, fallback string, in *Input) (toolrun.Result, error) {
	if name == "" {
		name = fallback
	}
	dir := in.Dir()
	if dir == "" {
		return toolrun.Unavailable, nil
	}
	return runner.Run(ctx, name, dir, toolrun.Vars{toolrun.VarDir: dir})
}
