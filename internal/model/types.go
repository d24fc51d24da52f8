package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Generator identifies the static-site generator used to build the website.
type Generator string

const (
	// GeneratorJekyll runs `jekyll build -s <source> -d <output>`.
	GeneratorJekyll Generator = "jekyll"

	// GeneratorHugo runs `hugo --source <source> --destination <output>`.
	GeneratorHugo Generator = "hugo"

	// GeneratorCommand runs a user-supplied argv with {source} and {output}
	// placeholders substituted.
	GeneratorCommand Generator = "command"
)

// String returns the string representation of Generator.
func (g Generator) String() string {
	return string(g)
}

// IsValid checks whether the Generator value is one of the supported generators.
func (g Generator) IsValid() bool {
	switch g {
	case GeneratorJekyll, GeneratorHugo, GeneratorCommand:
		return true
	default:
		return false
	}
}

// ParseGenerator converts a string to a Generator.
// Returns an error if the string does not match any supported generator.
func ParseGenerator(s string) (Generator, error) {
	gen := Generator(strings.ToLower(strings.TrimSpace(s)))
	if !gen.IsValid() {
		return "", fmt.Errorf("invalid generator: %q (valid: jekyll, hugo, command)", s)
	}
	return gen, nil
}

// Step names one stage of the publish workflow. Steps run strictly in
// the order returned by Steps().
type Step string

const (
	StepPrecondition Step = "precondition"
	StepDiscover     Step = "discover"
	StepWorkspace    Step = "workspace"
	StepBuild        Step = "build"
	StepCheckout     Step = "checkout"
	StepStash        Step = "stash"
	StepWipe         Step = "wipe"
	StepInstall      Step = "install"
	StepPublish      Step = "publish"
	StepRestore      Step = "restore"
)

// Steps returns every workflow step in execution order.
func Steps() []Step {
	return []Step{
		StepPrecondition,
		StepDiscover,
		StepWorkspace,
		StepBuild,
		StepCheckout,
		StepStash,
		StepWipe,
		StepInstall,
		StepPublish,
		StepRestore,
	}
}

// String returns the string representation of Step.
func (s Step) String() string {
	return string(s)
}

// Mutates reports whether the step changes the working tree or the index.
// Everything from the branch switch onwards does; a failure in one of these
// steps requires a rollback to the starting branch.
func (s Step) Mutates() bool {
	switch s {
	case StepCheckout, StepStash, StepWipe, StepInstall, StepPublish, StepRestore:
		return true
	default:
		return false
	}
}

// Branch is a single local branch as reported by `git branch`.
type Branch struct {
	// Name is the short branch name (e.g., "main").
	Name string `json:"name"`

	// Current is true for the branch that is checked out.
	Current bool `json:"current"`

	// Detached marks the pseudo-entry git prints for a detached HEAD,
	// e.g. "(HEAD detached at 1a2b3c4)". Such an entry has no usable name.
	Detached bool `json:"detached,omitempty"`
}

// CurrentBranch returns the name of the checked-out branch. The boolean is
// false when no branch is current (detached HEAD, or a repository with no
// commits where `git branch` prints nothing).
func CurrentBranch(branches []Branch) (string, bool) {
	for _, b := range branches {
		if b.Current && !b.Detached {
			return b.Name, true
		}
	}
	return "", false
}

// HasBranch reports whether a branch with the given name is in the list.
func HasBranch(branches []Branch, name string) bool {
	for _, b := range branches {
		if !b.Detached && b.Name == name {
			return true
		}
	}
	return false
}

// BuildRequest describes one static-site build. All paths are absolute.
type BuildRequest struct {
	// RepoRoot is the top-level directory of the repository being published.
	RepoRoot string `json:"repoRoot"`

	// SourceDir is the generator's source directory (e.g., <repo>/website).
	SourceDir string `json:"sourceDir"`

	// OutputDir is the empty temporary directory the site is written into.
	OutputDir string `json:"outputDir"`
}

// Validate checks that every path is set and absolute.
func (r BuildRequest) Validate() error {
	paths := []struct{ name, value string }{
		{"repo root", r.RepoRoot},
		{"source directory", r.SourceDir},
		{"output directory", r.OutputDir},
	}
	for _, p := range paths {
		if p.value == "" {
			return fmt.Errorf("build request: %s must not be empty", p.name)
		}
		if !filepath.IsAbs(p.value) {
			return fmt.Errorf("build request: %s %q must be absolute", p.name, p.value)
		}
	}
	return nil
}

// Plan is the outcome of the read-only part of the workflow: the
// precondition check and branch discovery.
type Plan struct {
	// RepoRoot is the repository top-level directory.
	RepoRoot string `json:"repoRoot"`

	// StartingBranch is the branch checked out when the run began.
	// The run always returns to it.
	StartingBranch string `json:"startingBranch"`

	// HostingBranch is the branch the built site is committed to.
	HostingBranch string `json:"hostingBranch"`

	// HostingExists is false when the hosting branch will be created as
	// an orphan.
	HostingExists bool `json:"hostingExists"`

	// Remote is the remote the hosting branch is pushed to.
	Remote string `json:"remote"`

	// StashFiles lists the allow-listed files currently present that will be
	// moved aside during the branch switch.
	StashFiles []string `json:"stashFiles"`
}

// PublishResult summarizes a completed deploy run.
type PublishResult struct {
	Plan

	// CreatedBranch is true if the hosting branch was created as an orphan.
	CreatedBranch bool `json:"createdBranch"`

	// FilesPublished is the number of files in the built site.
	FilesPublished int `json:"filesPublished"`

	// StashedFiles lists the files moved aside and restored afterwards.
	StashedFiles []string `json:"stashedFiles"`

	// Committed is false when the built site was identical to the hosting
	// branch contents and no commit was necessary.
	Committed bool `json:"committed"`

	// Pushed is false when pushing was disabled.
	Pushed bool `json:"pushed"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`

	// Duration is the wall-clock duration of the run.
	Duration time.Duration `json:"duration"`
}

// BuildContainer is a container started by the docker site builder,
// reconstructed from its labels.
type BuildContainer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	RepoRoot      string    `json:"repoRoot"`
	HostingBranch string    `json:"hostingBranch"`
	Generator     Generator `json:"generator"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ExitCode defines the CLI exit codes. Scripts and CI jobs can use them to
// tell a refused run (dirty tree) from a failed one.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitDirtyWorkingTree indicates the precondition failed: the working
	// tree has uncommitted or untracked changes. Nothing was modified.
	ExitDirtyWorkingTree ExitCode = 2

	// ExitGitError indicates a git command failed.
	ExitGitError ExitCode = 3

	// ExitBuildFailed indicates the static-site generator failed.
	ExitBuildFailed ExitCode = 4

	// ExitEmptyBuild indicates the generator succeeded but produced no files.
	ExitEmptyBuild ExitCode = 5

	// ExitConfigError indicates the configuration file or flags are invalid.
	ExitConfigError ExitCode = 6

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 7

	// ExitRestoreFailed indicates the run could not put the repository
	// back on the starting branch or could not restore stashed files.
	// Manual recovery is needed.
	ExitRestoreFailed ExitCode = 8

	// ExitCancelled indicates the run was interrupted.
	ExitCancelled ExitCode = 9
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitCodeOf returns the exit code carried by the outermost CLIError in
// err's chain, ExitSuccess for a nil error, and ExitGeneralError otherwise.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitGeneralError
}
