package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/vmstated/vmstate/pkg/log"
)

// Result holds the outcome of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands. The error is non-nil only when the
// command could not be run at all (not found, context expired); a non-zero
// exit status is reported through Result.ExitCode so callers can treat it
// as domain data rather than a transport failure.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Func adapts a plain function to the Runner interface. Tests use it to
// script command outcomes without spawning processes.
type Func func(ctx context.Context, name string, args ...string) (Result, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs commands on the host with captured output.
type ExecRunner struct {
	// Timeout is the per-command execution cap (default: 1 minute).
	Timeout time.Duration
}

// New creates an ExecRunner with the default timeout.
func New() *ExecRunner {
	return &ExecRunner{Timeout: time.Minute}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	start := time.Now()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	logger := log.WithComponent("runner")
	if err != nil {
		if execCtx.Err() != nil {
			return res, fmt.Errorf("command %s timed out after %s: %w", name, timeout, execCtx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Debug().Str("cmd", name).Strs("args", args).
				Int("exit", res.ExitCode).Dur("took", res.Duration).Msg("command finished")
			return res, nil
		}
		return res, fmt.Errorf("failed to run %s: %w", name, err)
	}

	logger.Debug().Str("cmd", name).Strs("args", args).
		Int("exit", 0).Dur("took", res.Duration).Msg("command finished")
	return res, nil
}
