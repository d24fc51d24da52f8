// Package main is the entry point for the pages-deploy CLI.
//
// pages-deploy builds a project's static website and publishes it to the
// repository's gh-pages branch. All functionality lives in the
// internal/cli package, which defines the cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags.
// During development, they default to "dev", "none", and "unknown".
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmr-tortoise/pages-deploy/internal/cli"
)

// version, commit, and date are set at build time, e.g.
//
//	go build -ldflags "-X main.version=1.2.0 -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// An interrupt cancels the context. A publish in progress then rolls
	// back to the starting branch before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCommand()
	cli.Execute(ctx, rootCmd)
}
