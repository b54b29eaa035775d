package collect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Result holds the signals of one analysis. It is not modified after
// [Source.Collect] returns.
type Result struct {
	Files           *Files          `json:"files,omitempty"`
	Badges          []Badge         `json:"badges,omitempty"`
	Linters         []string        `json:"linters,omitempty"`
	Coverage        *float64        `json:"coverage,omitempty"`
	Outdated        Outdated        `json:"outdatedDependencies"`
	Vulnerabilities Vulnerabilities `json:"dependenciesVulnerabilities"`
}

// Files summarizes the package tree.
type Files struct {
	ReadmeSize    int64 `json:"readmeSize"`
	TestsSize     int64 `json:"testsSize"`
	HasNpmIgnore  bool  `json:"hasNpmIgnore,omitempty"`
	HasShrinkwrap bool  `json:"hasShrinkwrap,omitempty"`
	HasChangelog  bool  `json:"hasChangelog,omitempty"`
}

// Badge is a badge image referenced by the README.
type Badge struct {
	URL     string `json:"url"`
	Service string `json:"service"`
	Type    string `json:"type"`
}

var jsonFalse = []byte("false")

// Outdated lists dependencies behind their latest release, keyed by name.
// When the information could not be determined Known is false and the value
// marshals as false.
type Outdated struct {
	Known bool
	Deps  map[string]json.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (o Outdated) MarshalJSON() ([]byte, error) {
	if !o.Known {
		return jsonFalse, nil
	}
	if o.Deps == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(o.Deps)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Outdated) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonFalse) {
		*o = Outdated{}
		return nil
	}
	var deps map[string]json.RawMessage
	if err := json.Unmarshal(b, &deps); err != nil {
		return fmt.Errorf("outdatedDependencies: %w", err)
	}
	*o = Outdated{Known: true, Deps: deps}
	return nil
}

// Names returns the outdated dependency names in order.
func (o Outdated) Names() []string {
	names := make([]string, 0, len(o.Deps))
	for name := range o.Deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Vulnerabilities lists known vulnerabilities of the dependencies. When the
// information could not be determined Known is false and the value marshals
// as false.
type Vulnerabilities struct {
	Known bool
	Items []json.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (v Vulnerabilities) MarshalJSON() ([]byte, error) {
	if !v.Known {
		return jsonFalse, nil
	}
	if v.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vulnerabilities) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonFalse) {
		*v = Vulnerabilities{}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("dependenciesVulnerabilities: %w", err)
	}
	*v = Vulnerabilities{Known: true, Items: items}
	return nil
}
