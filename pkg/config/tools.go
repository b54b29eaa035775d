package config

import (
	"time"

	"github.com/BurntSushi/toml"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/toolrun"
)

// toolsFile is the TOML layout of a tools file:
//
//	[[tool]]
//	name = "outdated"
//	command = "npm"
//	args = ["outdated", "--json", "--long"]
//	timeout = "90s"
//	success_codes = [0, 1]
//	transient = ["ECONNRESET"]
type toolsFile struct {
	Tools []toolEntry `toml:"tool"`
}

type toolEntry struct {
	Name          string   `toml:"name"`
	Command       string   `toml:"command"`
	Args          []string `toml:"args"`
	Timeout       duration `toml:"timeout"`
	SuccessCodes  []int    `toml:"success_codes"`
	Output        string   `toml:"output"`
	Transient     []string `toml:"transient"`
	Unrecoverable []string `toml:"unrecoverable"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// LoadTools reads tool definitions from a TOML file and merges them over
// [toolrun.DefaultTools]. A definition with a built-in name overrides only
// the fields it sets; other names add new tools.
func LoadTools(path string) ([]toolrun.Tool, error) {
	var f toolsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "read tools file %s", path)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, perrors.New(perrors.ErrCodeInvalidConfig, "tools file %s: unknown key %q", path, keys[0].String())
	}
	return mergeTools(toolrun.DefaultTools(), f.Tools)
}

func mergeTools(base []toolrun.Tool, entries []toolEntry) ([]toolrun.Tool, error) {
	tools := append([]toolrun.Tool(nil), base...)
	index := make(map[string]int, len(tools))
	for i, t := range tools {
		index[t.Name] = i
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, perrors.New(perrors.ErrCodeInvalidConfig, "tool without name")
		}
		if e.Output != "" && e.Output != toolrun.OutputJSON && e.Output != toolrun.OutputNone {
			return nil, perrors.New(perrors.ErrCodeInvalidConfig, "tool %s: unknown output %q", e.Name, e.Output)
		}
		i, ok := index[e.Name]
		if !ok {
			if e.Command == "" {
				return nil, perrors.New(perrors.ErrCodeInvalidConfig, "tool %s: command is required", e.Name)
			}
			tools = append(tools, toolrun.Tool{Name: e.Name})
			i = len(tools) - 1
			index[e.Name] = i
		}
		e.apply(&tools[i])
	}
	return tools, nil
}

func (e toolEntry) apply(t *toolrun.Tool) {
	if e.Command != "" {
		t.Command = e.Command
	}
	if e.Args != nil {
		t.Args = e.Args
	}
	if e.Timeout.Duration > 0 {
		t.Timeout = e.Timeout.Duration
	}
	if e.SuccessCodes != nil {
		t.SuccessCodes = e.SuccessCodes
	}
	if e.Output != "" {
		t.Output = e.Output
	}
	if e.Transient != nil {
		t.Transient = e.Transient
	}
	if e.Unrecoverable != nil {
		t.Unrecoverable = e.Unrecoverable
	}
}
