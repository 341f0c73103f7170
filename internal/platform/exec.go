package platform

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecResult captures the observable output of a finished process.
// A non-zero ExitCode is not an error at this layer; callers decide
// whether it means "probe failed" or "tool reported a condition".
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunOptions control how a command is spawned.
type RunOptions struct {
	// Env replaces the process environment when non-nil.
	Env []string
	// Dir is the working directory ("" means inherit).
	Dir string
	// Timeout bounds the run; zero means no bound beyond ctx.
	Timeout time.Duration
}

// Executor spawns external processes and captures their output.
// It exists so environment probing can be faked in tests and so the
// discovery core never touches os/exec directly.
type Executor interface {
	// Run executes path with args and returns the captured result.
	// An error is returned only for spawn failures, timeouts, or
	// context cancellation; non-zero exits come back in the result.
	Run(ctx context.Context, path string, args []string, opts RunOptions) (*ExecResult, error)

	// LookPath reports the absolute path of an executable found on
	// the current PATH, or "" if none exists.
	LookPath(name string) string
}

// SystemExecutor is the os/exec-backed Executor used outside tests.
type SystemExecutor struct{}

// NewSystemExecutor returns an Executor backed by os/exec.
func NewSystemExecutor() *SystemExecutor {
	return &SystemExecutor{}
}

// Run implements Executor.
func (e *SystemExecutor) Run(ctx context.Context, path string, args []string, opts RunOptions) (*ExecResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		// Spawn failure, timeout, or cancellation.
		return nil, err
	}

	return result, nil
}

// LookPath implements Executor.
func (e *SystemExecutor) LookPath(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
