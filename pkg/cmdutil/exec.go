package cmdutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the hard wall-clock limit for the command.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command, each in the
	// form "KEY=value". Nil inherits the process environment.
	Env []string
}

// Result is the observable outcome of one command execution. Failures —
// non-zero exit, timeout, even a failed launch — are captured here rather
// than returned as errors, so a caller always gets a well-formed result.
type Result struct {
	// Stdout and Stderr hold the full captured streams.
	Stdout string
	Stderr string

	// ExitCode is the process exit code; -1 when the process never
	// exited normally (timeout, launch failure, signal).
	ExitCode int

	// TimedOut is set when the command hit the ExecOptions timeout.
	TimedOut bool

	// Duration is how long the command ran.
	Duration time.Duration
}

// OK reports whether the command ran to completion with exit code 0.
func (r *Result) OK() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// RunFunc is the signature of Run, exposed so callers can substitute a
// fake runner in tests.
type RunFunc func(ctx context.Context, opts ExecOptions, argv []string) *Result

// Run executes argv[0] with the remaining arguments. It never returns an
// error: a command that cannot even be launched produces a failed Result
// with the launch fault in Stderr, and a timeout produces a failed Result
// naming the timeout (partial output from a killed process is discarded).
func Run(ctx context.Context, opts ExecOptions, argv []string) *Result {
	if len(argv) == 0 {
		return &Result{ExitCode: -1, Stderr: "empty command"}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Result{
			ExitCode: -1,
			TimedOut: true,
			Stderr:   fmt.Sprintf("command timed out after %.0f seconds", opts.Timeout.Seconds()),
			Duration: duration,
		}
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Launch-level fault: missing binary, bad working
			// directory. Surfaced as a failed result, never raised.
			result.ExitCode = -1
			result.Stderr = err.Error()
		}
	}

	return result
}

// ParseCommandString parses a shell-quoted command string into argv parts.
//
// Example:
//
//	"git commit -m \"my message\"" -> ["git", "commit", "-m", "my message"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand formats argv parts into a readable string for logs and
// step records. Example: ["git", "commit", "-m", "my message"] ->
// "git commit -m 'my message'".
func FormatCommand(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(argv))
	for i, part := range argv {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}
