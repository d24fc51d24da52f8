// Package cli implements the cobra-based CLI commands for pages-deploy.
//
// Running pages-deploy without a subcommand publishes the site, exactly
// like "pages-deploy publish". The other subcommands (plan, init, prune)
// are defined in their own files. This file defines the root command, the
// global flags and the error/exit-code handling.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/pages-deploy/internal/config"
	"github.com/mmr-tortoise/pages-deploy/internal/git"
	"github.com/mmr-tortoise/pages-deploy/internal/logger"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches results and log lines to JSON.
	jsonOutput bool

	// verbose enables debug-level logging.
	verbose bool

	// configPath overrides config file discovery in the repository root.
	configPath string

	// repoDir is the directory pages-deploy operates on (default: cwd).
	repoDir string
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command publishes the site; it accepts the same flags as the
// publish subcommand.
func NewRootCommand() *cobra.Command {
	flags := &publishFlags{}

	rootCmd := &cobra.Command{
		Use:   "pages-deploy",
		Short: "Publish a statically generated website to a gh-pages branch",
		Long: `pages-deploy builds the project website and publishes it to a dedicated
hosting branch (gh-pages by default) of the current repository.

The run builds the site first, then switches to the hosting branch, replaces
its contents with the build output, commits, pushes and switches back. The
working tree must be clean. Local files matched by the stash patterns (IDE
metadata and the like) are moved aside during the switch and restored.

Settings are read from .pages-deploy.yml (or .yaml / .json) in the
repository root; flags override them.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), flags, cmd.Flags().Changed)
		},

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .pages-deploy.yml in the repository root)")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", "", "Run as if started in this directory")

	registerPublishFlags(rootCmd, flags)

	rootCmd.AddCommand(NewPublishCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewPruneCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError values anywhere in the error chain carry their own exit code;
// other errors exit with code 1.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode; stdout is reserved for
		// successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// newLogger builds the step-narration logger from the global flags.
// Log lines go to stderr so stdout only carries the command result.
func newLogger() *zap.Logger {
	return logger.New(logger.Options{
		Verbose: verbose,
		JSON:    jsonOutput,
		Output:  os.Stderr,
	})
}

// loadRepository resolves the repository root from --repo (or the current
// directory) and loads its configuration, honouring --config.
func loadRepository(ctx context.Context, log *zap.Logger) (string, *config.Config, error) {
	dir := repoDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", nil, model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
		dir = cwd
	}

	repoRoot, err := git.NewManager().RepoRoot(ctx, dir)
	if err != nil {
		return "", nil, model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}
	log.Debug("repository", zap.String("root", repoRoot))

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", nil, err
		}
		log.Debug("loaded config", zap.String("path", configPath))
		return repoRoot, cfg, nil
	}

	cfg, path, err := config.LoadForRepo(repoRoot)
	if err != nil {
		return "", nil, err
	}
	if path != "" {
		log.Debug("loaded config", zap.String("path", path))
	} else {
		log.Debug("no config file, using defaults")
	}
	return repoRoot, cfg, nil
}
