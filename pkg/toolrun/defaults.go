package toolrun

import "time"

// Names of the built-in tools.
const (
	ToolLockfile        = "lockfile"
	ToolOutdated        = "outdated"
	ToolVulnerabilities = "vulnerabilities"
	ToolGitClone        = "git-clone"
	ToolGitCheckout     = "git-checkout"
)

// DefaultTools returns the built-in tool definitions. A tools file may
// override any of them by name.
func DefaultTools() []Tool {
	return []Tool{
		{
			// Published tarballs rarely ship a lockfile and npm audit refuses
			// to run without one (ENOLOCK). This resolves the tree from the
			// registry without installing anything.
			Name:    ToolLockfile,
			Command: "npm",
			Args:    []string{"install", "--package-lock-only", "--ignore-scripts", "--no-audit", "--no-fund", "--legacy-peer-deps"},
			Timeout: 3 * time.Minute,
			Output:  OutputNone,
		},
		{
			Name:    ToolOutdated,
			Command: "npm",
			Args:    []string{"outdated", "--json", "--long"},
			Timeout: 2 * time.Minute,
			// npm outdated exits 1 when it found something. Without
			// node_modules it still reports wanted and latest per range.
			SuccessCodes: []int{0, 1},
			Output:       OutputJSON,
		},
		{
			Name:         ToolVulnerabilities,
			Command:      "npm",
			Args:         []string{"audit", "--json", "--package-lock-only"},
			Timeout:      2 * time.Minute,
			SuccessCodes: []int{0, 1},
			Output:       OutputJSON,
		},
		{
			Name:      ToolGitClone,
			Command:   "git",
			Args:      []string{"clone", "--quiet", "{url}", "{dir}"},
			Timeout:   5 * time.Minute,
			Output:    OutputNone,
			Transient: []string{"Could not resolve host", "early EOF", "The remote end hung up unexpectedly"},
		},
		{
			Name:    ToolGitCheckout,
			Command: "git",
			Args:    []string{"checkout", "--quiet", "{ref}"},
			Timeout: time.Minute,
			Output:  OutputNone,
		},
	}
}
