// Package model defines the domain types and value objects for the
// pages-deploy CLI.
//
// This package contains pure data structures with no external dependencies.
// Nothing here is persisted: a deploy run captures a handful of transient
// facts (starting branch, whether the hosting branch exists, which files were
// stashed) and reports them back through PublishResult.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
