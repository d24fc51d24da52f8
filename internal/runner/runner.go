// Package runner executes external programs (git, jekyll, hugo) and reports
// the outcome as a Result value.
//
// Every invocation returns a Result carrying the captured stdout, stderr and
// exit code, and a non-nil *Error when the program did not exit cleanly.
// Callers therefore cannot silently ignore a failed command the way a shell
// script chaining backticks would.
//
// The Runner interface is the seam used by tests: packages that shell out
// accept a Runner and production code passes an *ExecRunner.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner runs a program in a directory and returns its Result.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// Result is the outcome of a single external command.
type Result struct {
	// Name is the program that was run (e.g., "git").
	Name string

	// Args are the arguments passed to the program, excluding Name.
	Args []string

	// Dir is the working directory the program ran in.
	Dir string

	// Stdout and Stderr hold everything the program printed.
	Stdout string
	Stderr string

	// ExitCode is the process exit status. It is -1 when the program could
	// not be started or was killed by a signal.
	ExitCode int

	// Duration is how long the program ran.
	Duration time.Duration
}

// Success reports whether the program exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// CommandLine renders the invocation for log and error messages.
func (r Result) CommandLine() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	return r.Name + " " + strings.Join(r.Args, " ")
}

// Error is returned when a program fails to start or exits non-zero.
type Error struct {
	// Result is the failed invocation, including its stderr.
	Result Result

	// Err is the error reported by os/exec.
	Err error
}

// Error renders the command line, exit code and trimmed stderr.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed", e.Result.CommandLine())
	if e.Result.ExitCode >= 0 {
		msg = fmt.Sprintf("%s (exit %d)", msg, e.Result.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, stderr)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the os/exec error so callers can match exec.ErrNotFound
// or context.Canceled.
func (e *Error) Unwrap() error {
	return e.Err
}

// ExecRunner is the default Runner. It delegates to os/exec.
type ExecRunner struct {
	// Stdout and Stderr, when set, receive a live copy of the program's
	// output in addition to the capture stored in Result. The site builders
	// use this so the generator's progress is visible to the operator.
	Stdout io.Writer
	Stderr io.Writer

	// Env is appended to the current process environment.
	Env []string
}

// NewExecRunner creates an ExecRunner that only captures output.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args in dir. The child is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	// #nosec G204: program names come from fixed templates or the
	// repository's own configuration file.
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeTo(&stdout, r.Stdout)
	cmd.Stderr = teeTo(&stderr, r.Stderr)

	start := time.Now()
	err := cmd.Run()

	result := Result{
		Name:     name,
		Args:     args,
		Dir:      dir,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, err),
		Duration: time.Since(start),
	}

	if err != nil {
		// Prefer the context error so callers see context.Canceled rather
		// than "signal: killed" when the run was interrupted.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return result, &Error{Result: result, Err: err}
	}
	return result, nil
}

func teeTo(capture *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(capture, live)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
