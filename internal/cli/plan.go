package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/pages-deploy/internal/config"
	"github.com/mmr-tortoise/pages-deploy/internal/deploy"
	"github.com/mmr-tortoise/pages-deploy/internal/docker"
	"github.com/mmr-tortoise/pages-deploy/internal/git"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// NewPlanCommand creates the "plan" cobra command.
func NewPlanCommand() *cobra.Command {
	flags := &publishFlags{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what publish would do without changing anything",
		Long: `Run the read-only checks of a publish and print the result.

The working tree must be clean and a branch must be checked out, exactly
as for publish. The output names the starting branch, whether the hosting
branch exists or will be created, and which local files would be stashed.
Nothing is built, checked out or written.

Examples:
  pages-deploy plan
  pages-deploy plan --branch pages --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), flags, cmd.Flags().Changed)
		},
	}

	registerPublishFlags(cmd, flags)
	return cmd
}

func runPlan(ctx context.Context, flags *publishFlags, changed func(string) bool) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	repoRoot, cfg, err := loadRepository(ctx, log)
	if err != nil {
		return err
	}
	if err := applyPublishFlags(cfg, flags, changed); err != nil {
		return err
	}

	// Plan never builds, so no builder is needed.
	o := deploy.New(git.NewManager(), nil, log, deployOptions(repoRoot, cfg))
	plan, err := o.Plan(ctx)
	if err != nil {
		return err
	}

	printPlanResult(plan, cfg)
	return nil
}

// planJSON adds the build and push settings to the plan.
type planJSON struct {
	*model.Plan
	Generator string `json:"generator"`
	Source    string `json:"source"`
	Image     string `json:"image,omitempty"`
	Push      bool   `json:"push"`
}

func newPlanJSON(plan *model.Plan, cfg *config.Config) planJSON {
	out := planJSON{
		Plan:      plan,
		Generator: cfg.Site.Generator.String(),
		Source:    cfg.Site.Source,
		Push:      cfg.Push,
	}
	if cfg.Site.Docker.Enabled {
		out.Image = buildImage(cfg)
	}
	if out.StashFiles == nil {
		out.StashFiles = []string{}
	}
	return out
}

// buildImage returns the configured container image or the generator's
// default.
func buildImage(cfg *config.Config) string {
	if cfg.Site.Docker.Image != "" {
		return cfg.Site.Docker.Image
	}
	return docker.DefaultImage(cfg.Site.Generator)
}

func printPlanResult(plan *model.Plan, cfg *config.Config) {
	if IsJSONOutput() {
		p := newPlanJSON(plan, cfg)
		data, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Print(formatPlanText(plan, cfg))
}

// formatPlanText renders the plan as aligned "key: value" lines.
func formatPlanText(plan *model.Plan, cfg *config.Config) string {
	var b strings.Builder

	hosting := plan.HostingBranch + " (exists)"
	if !plan.HostingExists {
		hosting = plan.HostingBranch + " (will be created as an orphan branch)"
	}

	build := fmt.Sprintf("%s from %s", cfg.Site.Generator, cfg.Site.Source)
	if cfg.Site.Docker.Enabled {
		build += fmt.Sprintf(" in %s", buildImage(cfg))
	}

	push := plan.Remote
	if !cfg.Push {
		push = "disabled"
	}

	stashed := "none"
	if len(plan.StashFiles) > 0 {
		stashed = strings.Join(plan.StashFiles, ", ")
	}

	fmt.Fprintf(&b, "%-17s %s\n", "Repository:", plan.RepoRoot)
	fmt.Fprintf(&b, "%-17s %s\n", "Starting branch:", plan.StartingBranch)
	fmt.Fprintf(&b, "%-17s %s\n", "Hosting branch:", hosting)
	fmt.Fprintf(&b, "%-17s %s\n", "Build:", build)
	fmt.Fprintf(&b, "%-17s %s\n", "Push:", push)
	fmt.Fprintf(&b, "%-17s %s\n", "Stashed files:", stashed)
	return b.String()
}
