package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Executor runs a command in a directory and reports its exit code.
// A non-nil error means the command could not be run or did not exit
// normally (e.g. it was killed by a timeout).
type Executor interface {
	Execute(ctx context.Context, dir, command string, args ...string) (Execution, error)
}

// Execution is the captured outcome of one command.
type Execution struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ExecExecutor runs commands as local subprocesses.
type ExecExecutor struct{}

// Execute implements Executor.
func (ExecExecutor) Execute(ctx context.Context, dir, command string, args ...string) (Execution, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Execution{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", command, ctx.Err())
	case errors.As(err, &exitErr) && exitErr.Exited():
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("run %s: %w", command, err)
	}
}

// ExitError reports a tool run that failed. It carries stderr for classification.
type ExitError struct {
	Tool     string
	ExitCode int
	stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %s exited with code %d: %s", e.Tool, e.ExitCode, truncate(e.stderr, 200))
}

func (e *ExitError) Unwrap() error { return e.Err }

// Stderr returns the captured standard error output.
func (e *ExitError) Stderr() string { return e.stderr }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
