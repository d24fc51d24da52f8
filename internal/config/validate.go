package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// ValidationError represents a specific validation failure in a config.
type ValidationError struct {
	// Field is the config field path that failed validation (e.g., "site.source").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a configuration and returns every problem found
// (empty list = valid configuration).
//
// Checks performed:
//   - branch, remote and message are non-empty
//   - branch is usable as a git ref name
//   - generator is known; command is set exactly when generator is "command"
//   - source and wipe paths are relative and stay inside the repository
//   - stash patterns are valid globs naming top-level entries, never .git
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Branch) == "" {
		add("branch", "must not be empty")
	} else if msg := checkRefName(cfg.Branch); msg != "" {
		add("branch", "%q %s", cfg.Branch, msg)
	}
	if strings.TrimSpace(cfg.Remote) == "" {
		add("remote", "must not be empty")
	}
	if strings.TrimSpace(cfg.Message) == "" {
		add("message", "must not be empty")
	}

	if !cfg.Site.Generator.IsValid() {
		add("site.generator", "invalid generator %q (valid: jekyll, hugo, command)", cfg.Site.Generator)
	}
	switch {
	case cfg.Site.Generator == model.GeneratorCommand && len(cfg.Site.Command) == 0:
		add("site.command", "is required when generator is %q", model.GeneratorCommand)
	case cfg.Site.Generator != model.GeneratorCommand && len(cfg.Site.Command) > 0:
		add("site.command", "is only used when generator is %q", model.GeneratorCommand)
	}

	if msg := checkRepoPath(cfg.Site.Source); msg != "" {
		add("site.source", "%q %s", cfg.Site.Source, msg)
	}
	for i, p := range cfg.Wipe {
		if msg := checkRepoPath(p); msg != "" {
			add(fmt.Sprintf("wipe[%d]", i), "%q %s", p, msg)
		}
	}

	for i, pattern := range cfg.Stash {
		field := fmt.Sprintf("stash[%d]", i)
		if pattern == "" {
			add(field, "must not be empty")
			continue
		}
		if strings.ContainsAny(pattern, `/\`) {
			add(field, "%q must name a top-level entry (no path separators)", pattern)
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			add(field, "%q is not a valid glob: %v", pattern, err)
			continue
		}
		if matched, _ := filepath.Match(pattern, ".git"); matched {
			add(field, "%q would match .git", pattern)
		}
	}

	return errs
}

// Check runs Validate and folds the problems into a single CLIError with
// ExitConfigError, or returns nil for a valid configuration.
func Check(cfg *Config) error {
	problems := Validate(cfg)
	if len(problems) == 0 {
		return nil
	}
	var err error
	for _, p := range problems {
		err = multierr.Append(err, p)
	}
	return model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
}

// checkRefName applies the subset of git-check-ref-format rules that a
// branch name typed into a config file can plausibly break.
func checkRefName(name string) string {
	switch {
	case strings.HasPrefix(name, "-"):
		return "must not start with '-'"
	case strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/"):
		return "must not start or end with '/'"
	case strings.HasSuffix(name, ".") || strings.HasSuffix(name, ".lock"):
		return "must not end with '.' or '.lock'"
	case strings.Contains(name, ".."):
		return "must not contain '..'"
	case strings.Contains(name, "@{"):
		return "must not contain '@{'"
	case strings.ContainsAny(name, " ~^:?*[\\\t\n"):
		return "contains a character git does not allow in branch names"
	}
	return ""
}

// checkRepoPath verifies a path is relative, stays inside the repository,
// and is neither the repository root nor its .git directory.
func checkRepoPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "must not be empty"
	}
	if filepath.IsAbs(p) {
		return "must be relative to the repository root"
	}
	clean := filepath.Clean(p)
	switch {
	case clean == ".":
		return "must not be the repository root"
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return "must stay inside the repository"
	case clean == ".git" || strings.HasPrefix(clean, ".git"+string(filepath.Separator)):
		return "must not point into .git"
	}
	return ""
}
