package toolrun

import (
	"strings"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/classify"
)

// Output formats understood by the runner.
const (
	OutputJSON = "json"
	OutputNone = "none"
)

// Placeholders substituted in tool arguments.
const (
	VarDir = "dir"
	VarURL = "url"
	VarRef = "ref"
)

// Tool describes one external command.
type Tool struct {
	Name    string
	Command string
	// Args may contain {dir}, {url} and {ref} placeholders.
	Args    []string
	Timeout time.Duration
	// SuccessCodes lists exit codes treated as success. Empty means only 0.
	SuccessCodes []int
	// Output is OutputJSON (default) or OutputNone.
	Output string
	// Transient and Unrecoverable add stderr patterns on top of the defaults.
	Transient     []string
	Unrecoverable []string
}

// Vars holds placeholder values for one invocation.
type Vars map[string]string

func (t Tool) args(vars Vars) []string {
	out := make([]string, len(t.Args))
	for i, a := range t.Args {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

func (t Tool) success(code int) bool {
	if len(t.SuccessCodes) == 0 {
		return code == 0
	}
	for _, c := range t.SuccessCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (t Tool) parsesJSON() bool {
	return t.Output == "" || t.Output == OutputJSON
}

func (t Tool) classifier() classify.Classifier {
	c := classify.Classifier{Transient: t.Transient, Unrecoverable: classify.DefaultUnrecoverable}
	if len(t.Unrecoverable) > 0 {
		c.Unrecoverable = append(append([]string(nil), classify.DefaultUnrecoverable...), t.Unrecoverable...)
	}
	return c
}
