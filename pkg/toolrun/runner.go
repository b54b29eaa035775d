package toolrun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/httputil"
	"github.com/matzehuels/pkganalyzer/pkg/observability"
)

// DefaultTimeout bounds a single invocation when the tool sets none.
const DefaultTimeout = 5 * time.Minute

// DefaultPolicy retries transient failures 3 times, waiting 1s, 2s and 4s.
var DefaultPolicy = httputil.DefaultPolicy.WithRetries(3)

// Result is the outcome of a tool run.
type Result struct {
	// Available is false when the tool gave up; Output is then empty.
	Available bool
	// Output is the parsed stdout. It is nil for OutputNone tools and for
	// JSON tools that printed nothing.
	Output json.RawMessage
}

// Unavailable is the result of a run whose signal could not be determined.
var Unavailable = Result{}

// Decode unmarshals the output into v. Unavailable or empty results leave v
// untouched.
func (r Result) Decode(v any) error {
	if !r.Available || len(r.Output) == 0 {
		return nil
	}
	return json.Unmarshal(r.Output, v)
}

// Options configure a [Runner].
type Options struct {
	// Executor runs commands. Defaults to [ExecExecutor].
	Executor Executor
	// Policy bounds retries of transient failures. The zero value means [DefaultPolicy].
	Policy httputil.Policy
	Logger *log.Logger
}

// Runner executes named tools. It is safe for concurrent use.
type Runner struct {
	tools  map[string]Tool
	exec   Executor
	policy httputil.Policy
	logger *log.Logger
}

// NewRunner returns a runner for the given tools. Later definitions of the
// same name replace earlier ones.
func NewRunner(tools []Tool, opts Options) *Runner {
	if opts.Executor == nil {
		opts.Executor = ExecExecutor{}
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = DefaultPolicy
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	r := &Runner{
		tools:  make(map[string]Tool, len(tools)),
		exec:   opts.Executor,
		policy: opts.Policy,
		logger: opts.Logger,
	}
	for _, t := range tools {
		r.tools[t.Name] = t
	}
	return r
}

// Tool returns the definition registered under name.
func (r *Runner) Tool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Run invokes the named tool in dir. It returns [Unavailable] with a nil error
// when the tool failed permanently or kept failing transiently, and an error
// only when the failure is unrecoverable, the tool is unknown, or ctx ended.
func (r *Runner) Run(ctx context.Context, name, dir string, vars Vars) (Result, error) {
	tool, ok := r.tools[name]
	if !ok {
		return Unavailable, perrors.New(perrors.ErrCodeInvalidConfig, "unknown tool %q", name)
	}
	if vars == nil {
		vars = Vars{}
	}
	if _, ok := vars[VarDir]; !ok {
		vars[VarDir] = dir
	}
	args := tool.args(vars)
	classifier := tool.classifier()

	var (
		result Result
		reason string
	)
	err := r.policy.Do(ctx, func(attempt int) error {
		start := time.Now()
		out, err := r.attempt(ctx, tool, dir, args)
		if err == nil {
			observability.Tools().OnToolAttempt(ctx, name, attempt, "", time.Since(start))
			result = Result{Available: true, Output: out}
			return nil
		}

		verdict := classifier.ClassifyError(err)
		reason = verdict.Reason
		observability.Tools().OnToolAttempt(ctx, name, attempt, string(verdict.Class), time.Since(start))

		switch verdict.Class {
		case perrors.ClassTransient:
			r.logger.Debug("tool failed, will retry", "tool", name, "attempt", attempt+1, "reason", verdict.Reason, "err", err)
			return &httputil.RetryableError{Err: err}
		case perrors.ClassUnrecoverable:
			return perrors.Unrecoverable(err)
		default:
			return err
		}
	})

	switch {
	case err == nil:
		return result, nil
	case perrors.IsUnrecoverable(err):
		r.logger.Warn("tool failed with unrecoverable error", "tool", name, "err", err)
		return Unavailable, err
	case ctx.Err() != nil:
		return Unavailable, ctx.Err()
	}

	r.logger.Warn("tool unavailable", "tool", name, "reason", reason, "err", err)
	observability.Tools().OnToolUnavailable(ctx, name, reason)
	return Unavailable, nil
}

func (r *Runner) attempt(ctx context.Context, tool Tool, dir string, args []string) (json.RawMessage, error) {
	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := r.exec.Execute(callCtx, dir, tool.Command, args...)
	if err != nil {
		return nil, &ExitError{Tool: tool.Name, ExitCode: -1, stderr: string(res.Stderr), Err: err}
	}
	if !tool.success(res.ExitCode) {
		detail := res.Stderr
		if len(bytes.TrimSpace(detail)) == 0 {
			detail = res.Stdout
		}
		return nil, &ExitError{Tool: tool.Name, ExitCode: res.ExitCode, stderr: string(detail)}
	}
	if !tool.parsesJSON() {
		return nil, nil
	}

	out := bytes.TrimSpace(res.Stdout)
	if len(out) == 0 {
		return nil, nil
	}
	if !json.Valid(out) {
		return nil, &ExitError{
			Tool:     tool.Name,
			ExitCode: res.ExitCode,
			stderr:   string(out),
			Err:      errors.New("output is not valid JSON"),
		}
	}
	return json.RawMessage(out), nil
}
