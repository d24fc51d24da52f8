package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/pages-deploy/internal/builder"
	"github.com/mmr-tortoise/pages-deploy/internal/config"
	"github.com/mmr-tortoise/pages-deploy/internal/deploy"
	"github.com/mmr-tortoise/pages-deploy/internal/docker"
	"github.com/mmr-tortoise/pages-deploy/internal/git"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
	"github.com/mmr-tortoise/pages-deploy/internal/runner"
)

// publishFlags holds the flags shared by the root, publish and plan
// commands. They override the config file; only flags the user actually
// set are applied.
type publishFlags struct {
	branch    string // --branch: hosting branch
	remote    string // --remote: remote to push to
	message   string // --message: commit message
	source    string // --source: site source directory
	generator string // --generator: jekyll, hugo or command
	noPush    bool   // --no-push: commit only
	docker    bool   // --docker: build inside a container
	image     string // --image: container image for --docker
}

// NewPublishCommand creates the "publish" cobra command.
func NewPublishCommand() *cobra.Command {
	flags := &publishFlags{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Build the site and publish it to the hosting branch",
		Long: `Build the site and publish it to the hosting branch.

Steps:
  1. Check that the working tree is clean
  2. Build the site into a temporary directory
  3. Check out the hosting branch (created as an orphan if missing)
  4. Move local stash files aside and replace the branch contents
  5. Commit and push
  6. Return to the starting branch and restore the stashed files

Nothing is changed when the build fails or produces no files. Any failure
after the branch switch returns to the starting branch before exiting.

Examples:
  pages-deploy publish
  pages-deploy publish --generator hugo --source docs
  pages-deploy publish --docker --no-push
  pages-deploy publish -C ~/src/project --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), flags, cmd.Flags().Changed)
		},
	}

	registerPublishFlags(cmd, flags)
	return cmd
}

func registerPublishFlags(cmd *cobra.Command, flags *publishFlags) {
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Hosting branch (default: gh-pages)")
	cmd.Flags().StringVar(&flags.remote, "remote", "", "Remote to push to (default: origin)")
	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "Commit message (default: \"Update website\")")
	cmd.Flags().StringVar(&flags.source, "source", "", "Site source directory (default: website)")
	cmd.Flags().StringVar(&flags.generator, "generator", "", "Site generator: jekyll, hugo, command (default: jekyll)")
	cmd.Flags().BoolVar(&flags.noPush, "no-push", false, "Commit to the hosting branch without pushing")
	cmd.Flags().BoolVar(&flags.docker, "docker", false, "Run the generator inside a Docker container")
	cmd.Flags().StringVar(&flags.image, "image", "", "Container image for --docker (default depends on the generator)")
}

// applyPublishFlags copies the flags reported as changed onto cfg and
// validates the result.
func applyPublishFlags(cfg *config.Config, flags *publishFlags, changed func(string) bool) error {
	if changed("branch") {
		cfg.Branch = flags.branch
	}
	if changed("remote") {
		cfg.Remote = flags.remote
	}
	if changed("message") {
		cfg.Message = flags.message
	}
	if changed("source") {
		cfg.Site.Source = flags.source
	}
	if changed("generator") {
		gen, err := model.ParseGenerator(flags.generator)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "invalid --generator", err)
		}
		cfg.Site.Generator = gen
	}
	if changed("no-push") {
		cfg.Push = !flags.noPush
	}
	if changed("docker") {
		cfg.Site.Docker.Enabled = flags.docker
	}
	if changed("image") {
		cfg.Site.Docker.Image = flags.image
		// An explicit image only makes sense for a container build.
		if flags.image != "" {
			cfg.Site.Docker.Enabled = true
		}
	}
	return config.Check(cfg)
}

// deployOptions maps the configuration onto orchestrator options.
func deployOptions(repoRoot string, cfg *config.Config) deploy.Options {
	return deploy.Options{
		RepoRoot:       repoRoot,
		HostingBranch:  cfg.Branch,
		Remote:         cfg.Remote,
		CommitMessage:  cfg.Message,
		SourceDir:      cfg.Site.Source,
		SourceOptional: !builder.UsesSource(cfg.Site.Generator, cfg.Site.Command),
		StashPatterns:  cfg.Stash,
		WipePaths:      cfg.Wipe,
		Push:           cfg.Push,
	}
}

// newSiteBuilder returns the builder selected by the configuration and a
// function releasing its resources. Generator output goes to stderr so
// that stdout only carries the command result.
func newSiteBuilder(ctx context.Context, cfg *config.Config, log *zap.Logger) (deploy.SiteBuilder, func(), error) {
	if !cfg.Site.Docker.Enabled {
		r := &runner.ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr}
		return builder.NewHost(r, cfg.Site.Generator, cfg.Site.Command), func() {}, nil
	}

	cli, err := docker.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("connected to Docker daemon", zap.String("host", cli.Host()))
	b := docker.NewBuilder(cli, docker.BuilderOptions{
		Generator:     cfg.Site.Generator,
		Command:       cfg.Site.Command,
		Image:         cfg.Site.Docker.Image,
		Pull:          cfg.Site.Docker.Pull,
		HostingBranch: cfg.Branch,
		Stdout:        os.Stderr,
		Stderr:        os.Stderr,
	}, log)
	return b, func() { _ = cli.Close() }, nil
}

// runPublish loads the configuration, builds the orchestrator and runs it.
func runPublish(ctx context.Context, flags *publishFlags, changed func(string) bool) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	repoRoot, cfg, err := loadRepository(ctx, log)
	if err != nil {
		return err
	}
	if err := applyPublishFlags(cfg, flags, changed); err != nil {
		return err
	}

	siteBuilder, release, err := newSiteBuilder(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	o := deploy.New(git.NewManager(), siteBuilder, log, deployOptions(repoRoot, cfg))
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}

	printPublishResult(res)
	return nil
}

func printPublishResult(res *model.PublishResult) {
	if IsJSONOutput() {
		printPublishResultJSON(res)
	} else {
		printPublishResultText(res)
	}
}

func printPublishResultJSON(res *model.PublishResult) {
	type resultJSON struct {
		*model.PublishResult
		Duration string `json:"duration"`
	}

	data, _ := json.MarshalIndent(resultJSON{
		PublishResult: res,
		Duration:      res.Duration.Round(time.Millisecond).String(),
	}, "", "  ")
	fmt.Println(string(data))
}

func printPublishResultText(res *model.PublishResult) {
	fmt.Printf("Published %d files to %s\n", res.FilesPublished, res.HostingBranch)
	if res.CreatedBranch {
		fmt.Printf("  Created orphan branch %s\n", res.HostingBranch)
	}
	if res.Committed {
		fmt.Println("  Committed changes")
	} else {
		fmt.Println("  Site unchanged, no commit")
	}
	if res.Pushed {
		fmt.Printf("  Pushed to %s\n", res.Remote)
	} else {
		fmt.Println("  Push skipped")
	}
	if len(res.StashedFiles) > 0 {
		fmt.Printf("  Restored %s\n", strings.Join(res.StashedFiles, ", "))
	}
	fmt.Printf("  Back on %s\n", res.StartingBranch)
}
