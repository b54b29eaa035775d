// Package pkgdata models npm registry documents.
//
// [Data] is the registry document for a package (every published version,
// dist-tags, timestamps). [Manifest] is the package.json of the version
// being analyzed, derived from Data with [ManifestFromData].
package pkgdata

import (
	"encoding/json"
	"fmt"
	"strings"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
)

// Data is an npm registry document ("packument").
type Data struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags,omitempty"`
	Versions map[string]json.RawMessage `json:"versions,omitempty"`
	Time     map[string]string          `json:"time,omitempty"`
	Readme   string                     `json:"readme,omitempty"`
}

// Manifest is the subset of package.json the analyzer reads.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	Homepage        string            `json:"homepage,omitempty"`
	Repository      *Repository       `json:"repository,omitempty"`
	GitHead         string            `json:"gitHead,omitempty"`
	Dist            Dist              `json:"dist"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Scripts         map[string]string `json:"scripts,omitempty"`
	Deprecated      string            `json:"deprecated,omitempty"`
}

// Dist locates the published tarball.
type Dist struct {
	Tarball string `json:"tarball,omitempty"`
	Shasum  string `json:"shasum,omitempty"`
}

// Repository is the normalized "repository" field.
type Repository struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// UnmarshalJSON accepts both the object form and the "owner/repo" or URL
// string shorthand.
func (r *Repository) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Repository{Type: "git", URL: s}
		return nil
	}
	type plain Repository
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Repository(p)
	return nil
}

// Unmarshal decodes a registry document.
func Unmarshal(b []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, perrors.Unrecoverable(perrors.Wrap(perrors.ErrCodeInvalidPackage, err, "malformed package data"))
	}
	return &d, nil
}

// LatestVersion returns the version the analysis targets: the "latest"
// dist-tag when it points to a published version, else the most recently
// published one.
func (d *Data) LatestVersion() (string, bool) {
	if v, ok := d.DistTags["latest"]; ok {
		if _, ok := d.Versions[v]; ok {
			return v, true
		}
	}
	var (
		best     string
		bestTime string
	)
	for v := range d.Versions {
		t := d.Time[v]
		if best == "" || t > bestTime || (t == bestTime && v > best) {
			best, bestTime = v, t
		}
	}
	return best, best != ""
}

// ManifestFromData derives the package.json of the latest version. Data with
// no versions is unrecoverable: reanalyzing it will never succeed.
func ManifestFromData(name string, d *Data) (*Manifest, error) {
	if d == nil {
		return nil, perrors.Unrecoverable(perrors.New(perrors.ErrCodeInvalidPackage, "no data for package %s", name))
	}
	version, ok := d.LatestVersion()
	if !ok {
		return nil, perrors.Unrecoverable(perrors.New(perrors.ErrCodeInvalidPackage, "package %s has no versions", name))
	}

	var m Manifest
	if err := json.Unmarshal(d.Versions[version], &m); err != nil {
		return nil, perrors.Unrecoverable(perrors.Wrap(perrors.ErrCodeInvalidPackage, err, "malformed package.json for %s@%s", name, version))
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Version == "" {
		m.Version = version
	}
	if m.Repository != nil {
		m.Repository.URL = strings.TrimSpace(m.Repository.URL)
		if m.Repository.URL == "" {
			m.Repository = nil
		}
	}
	return &m, nil
}

// String implements fmt.Stringer.
func (m *Manifest) String() string { return fmt.Sprintf("%s@%s", m.Name, m.Version) }
