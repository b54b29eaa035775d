package collect

import (
	"context"
	"os"
	"sort"
	"strings"
)

// linterFiles maps configuration file names found at the package root to
// the linter they configure.
var linterFiles = map[string]string{
	".eslintrc":          "eslint",
	".eslintrc.js":       "eslint",
	".eslintrc.cjs":      "eslint",
	".eslintrc.json":     "eslint",
	".eslintrc.yml":      "eslint",
	".eslintrc.yaml":     "eslint",
	"eslint.config.js":   "eslint",
	"eslint.config.mjs":  "eslint",
	"eslint.config.cjs":  "eslint",
	".jshintrc":          "jshint",
	".jscsrc":            "jscs",
	".jscs.json":         "jscs",
	"tslint.json":        "tslint",
	".prettierrc":        "prettier",
	".prettierrc.js":     "prettier",
	".prettierrc.json":   "prettier",
	".prettierrc.yml":    "prettier",
	".prettierrc.yaml":   "prettier",
	"prettier.config.js": "prettier",
	".editorconfig":      "editorconfig",
}

// linterPackages maps devDependencies to the linter they install.
var linterPackages = map[string]string{
	"eslint":       "eslint",
	"jshint":       "jshint",
	"jscs":         "jscs",
	"tslint":       "tslint",
	"prettier":     "prettier",
	"standard":     "standard",
	"semistandard": "standard",
	"xo":           "xo",
}

// LintersCollector detects the linters a package is set up with.
type LintersCollector struct{}

// Name implements Collector.
func (LintersCollector) Name() string { return "linters" }

// Collect implements Collector.
func (LintersCollector) Collect(_ context.Context, in *Input) (Apply, error) {
	found := make(map[string]bool)
	if dir := in.Dir(); dir != "" {
		if entries, err := os.ReadDir(dir); err == nil {
			for _, e := range entries {
				if linter, ok := linterFiles[strings.ToLower(e.Name())]; ok {
					found[linter] = true
				}
			}
		}
	}
	manifest := in.Manifest
	if in.Downloaded != nil && in.Downloaded.Manifest != nil {
		manifest = in.Downloaded.Manifest
	}
	if manifest != nil {
		for dep := range manifest.DevDependencies {
			if linter, ok := linterPackages[dep]; ok {
				found[linter] = true
			}
		}
	}

	linters := make([]string, 0, len(found))
	for l := range found {
		linters = append(linters, l)
	}
	sort.Strings(linters)
	return func(r *Result) {
		if len(linters) > 0 {
			r.Linters = linters
		}
	}, nil
}
