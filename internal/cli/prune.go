package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/pages-deploy/internal/docker"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

type pruneFlags struct {
	all   bool // --all: containers of every repository
	force bool // --force: also remove running containers
}

// NewPruneCommand creates the "prune" cobra command.
func NewPruneCommand() *cobra.Command {
	flags := &pruneFlags{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove build containers left behind by interrupted runs",
		Long: `Remove Docker build containers created by pages-deploy.

Build containers are removed as soon as the generator exits. A run killed
hard (or a daemon restart) can leave one behind; prune finds them by their
pages-deploy labels. By default only stopped containers of the current
repository are removed.

Examples:
  pages-deploy prune
  pages-deploy prune --all
  pages-deploy prune --all --force`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "Prune build containers of every repository")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Also remove running build containers")
	return cmd
}

func runPrune(ctx context.Context, flags *pruneFlags) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	repoRoot := ""
	if !flags.all {
		root, _, err := loadRepository(ctx, log)
		if err != nil {
			return err
		}
		repoRoot = root
	}

	cli, err := docker.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	containers, err := docker.ListBuildContainers(ctx, cli)
	if err != nil {
		return err
	}
	log.Debug("found build containers", zap.Int("count", len(containers)))

	targets := selectPruneTargets(containers, repoRoot, flags.force)

	var removed []model.BuildContainer
	var errs error
	for _, c := range targets {
		log.Info("Removing build container", zap.String("name", c.Name), zap.String("status", c.Status))
		if err := docker.RemoveContainer(ctx, cli, c.ID, flags.force); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed = append(removed, c)
	}

	printPruneResult(removed)
	if errs != nil {
		return model.WrapCLIError(model.ExitGeneralError, "some build containers could not be removed", errs)
	}
	return nil
}

// selectPruneTargets keeps the containers of repoRoot (all of them when
// repoRoot is empty). Running containers belong to a build in progress
// and are skipped unless force is set.
func selectPruneTargets(containers []model.BuildContainer, repoRoot string, force bool) []model.BuildContainer {
	var targets []model.BuildContainer
	for _, c := range containers {
		if repoRoot != "" && c.RepoRoot != repoRoot {
			continue
		}
		if c.Status == "running" && !force {
			continue
		}
		targets = append(targets, c)
	}
	return targets
}

func printPruneResult(removed []model.BuildContainer) {
	if IsJSONOutput() {
		result := struct {
			Removed []model.BuildContainer `json:"removed"`
		}{
			Removed: make([]model.BuildContainer, 0, len(removed)),
		}
		result.Removed = append(result.Removed, removed...)
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(removed) == 0 {
		fmt.Println("No build containers to remove.")
		return
	}
	fmt.Printf("%-30s %-10s %-12s %s\n", "NAME", "STATUS", "GENERATOR", "CREATED")
	for _, c := range removed {
		fmt.Printf("%-30s %-10s %-12s %s\n",
			c.Name,
			c.Status,
			c.Generator,
			c.CreatedAt.Local().Format(time.DateTime),
		)
	}
	fmt.Printf("Removed %d build container(s)\n", len(removed))
}
