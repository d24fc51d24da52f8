package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
	"github.com/mmr-tortoise/pages-deploy/internal/site"
	"github.com/mmr-tortoise/pages-deploy/internal/stash"
)

// VersionControl is the subset of git the workflow needs. Every method
// receives the repository path explicitly.
type VersionControl interface {
	IsClean(ctx context.Context, repoPath string) (bool, error)
	Branches(ctx context.Context, repoPath string) ([]model.Branch, error)
	Checkout(ctx context.Context, repoPath, branch string, force bool) error
	CheckoutOrphan(ctx context.Context, repoPath, branch string) error
	RemoveAll(ctx context.Context, repoPath string) error
	AddPaths(ctx context.Context, repoPath string, paths []string) error
	HasStagedChanges(ctx context.Context, repoPath string) (bool, error)
	TrackedFiles(ctx context.Context, repoPath string, paths []string) ([]string, error)
	Commit(ctx context.Context, repoPath, message string) error
	Push(ctx context.Context, repoPath, remote, branch string) error
	Clean(ctx context.Context, repoPath string) error
}

// SiteBuilder generates the website into req.OutputDir.
type SiteBuilder interface {
	Name() string
	Build(ctx context.Context, req model.BuildRequest) error
}

// Options are the per-run settings of the Orchestrator.
type Options struct {
	// RepoRoot is the absolute path of the repository top-level directory.
	RepoRoot string

	// HostingBranch receives the built site (e.g., "gh-pages").
	HostingBranch string

	// Remote is the remote the hosting branch is pushed to.
	Remote string

	// CommitMessage is used for the hosting branch commit.
	CommitMessage string

	// SourceDir is the generator source directory, relative to RepoRoot.
	SourceDir string

	// SourceOptional skips the existence check of SourceDir. It is set for
	// custom build commands that never reference the source directory.
	SourceOptional bool

	// StashPatterns select top-level files moved aside during the switch.
	StashPatterns []string

	// WipePaths are build-artifact paths removed before installing the site.
	WipePaths []string

	// Push enables pushing the hosting branch.
	Push bool

	// TempDir is where the run's temporary directories are created.
	// Empty means os.TempDir().
	TempDir string
}

// Orchestrator runs the publish workflow for one repository.
type Orchestrator struct {
	vcs     VersionControl
	builder SiteBuilder
	log     *zap.Logger
	opts    Options
}

// New creates an Orchestrator. A nil logger discards narration.
func New(vcs VersionControl, builder SiteBuilder, log *zap.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{vcs: vcs, builder: builder, log: log, opts: opts}
}

// Plan performs the read-only part of the workflow: the clean-tree
// precondition and branch discovery. It also lists the files the stash
// patterns currently match.
func (o *Orchestrator) Plan(ctx context.Context) (*model.Plan, error) {
	repo := o.opts.RepoRoot

	o.log.Debug("checking working tree", zap.String("step", model.StepPrecondition.String()), zap.String("repo", repo))
	clean, err := o.vcs.IsClean(ctx, repo)
	if err != nil {
		return nil, err
	}
	if !clean {
		return nil, model.NewCLIError(
			model.ExitDirtyWorkingTree,
			"working tree has uncommitted changes; commit or stash them before publishing",
		)
	}

	o.log.Debug("discovering branches", zap.String("step", model.StepDiscover.String()))
	branches, err := o.vcs.Branches(ctx, repo)
	if err != nil {
		return nil, err
	}
	starting, ok := model.CurrentBranch(branches)
	if !ok {
		return nil, model.NewCLIError(
			model.ExitGitError,
			"no branch is checked out (detached HEAD or a repository without commits)",
		)
	}
	if starting == o.opts.HostingBranch {
		return nil, model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("currently on the hosting branch %q; check out the source branch first", starting),
		)
	}

	stashFiles, err := o.stashCandidates(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Plan{
		RepoRoot:       repo,
		StartingBranch: starting,
		HostingBranch:  o.opts.HostingBranch,
		HostingExists:  model.HasBranch(branches, o.opts.HostingBranch),
		Remote:         o.opts.Remote,
		StashFiles:     stashFiles,
	}, nil
}

// Run executes the whole workflow. On success the repository is back on
// the starting branch with the stashed files restored and the hosting
// branch holds exactly the built site.
//
// Steps:
//  1. Precondition and branch discovery (Plan)
//  2. Create the temporary stash and build directories
//  3. Build the site and verify it is not empty
//  4. Check out the hosting branch, or create it as an orphan
//  5. Move the untracked stash files aside
//  6. Remove every tracked file and the wipe paths
//  7. Copy the build output into the working tree
//  8. Stage the site, commit if anything changed, push
//  9. Check out the starting branch and restore the stash
//
// Nothing is modified before step 3 has succeeded. A failure in steps 4-8
// rolls back to the starting branch; if even the rollback fails the stash
// directory is kept and its path is part of the returned error
// (ExitRestoreFailed).
func (o *Orchestrator) Run(ctx context.Context) (*model.PublishResult, error) {
	started := time.Now()

	plan, err := o.Plan(ctx)
	if err != nil {
		return nil, interrupted(ctx, err)
	}
	o.log.Debug("plan",
		zap.String("starting", plan.StartingBranch),
		zap.String("hosting", plan.HostingBranch),
		zap.Bool("hostingExists", plan.HostingExists),
	)

	ws, err := newWorkspace(o.opts.TempDir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "cannot prepare workspace", err)
	}
	o.log.Debug("created workspace", zap.String("step", model.StepWorkspace.String()), zap.String("dir", ws.root))

	keepStash := false
	defer func() {
		if err := ws.cleanup(keepStash); err != nil {
			o.log.Warn("failed to remove temporary directory", zap.String("dir", ws.root), zap.Error(err))
		}
	}()

	files, err := o.build(ctx, ws)
	if err != nil {
		return nil, interrupted(ctx, err)
	}

	result := &model.PublishResult{
		Plan:           *plan,
		FilesPublished: files,
		StartedAt:      started,
	}

	publishErr := o.publish(ctx, plan, ws, result)
	if publishErr != nil {
		o.log.Error("Publishing failed, rolling back", zap.Error(publishErr))
	}

	// Returning to the starting branch must happen even after an interrupt.
	if err := o.restore(context.WithoutCancel(ctx), plan.StartingBranch, ws, publishErr != nil); err != nil {
		keepStash = true
		return nil, model.WrapCLIError(
			model.ExitRestoreFailed,
			fmt.Sprintf("could not restore branch %q and stashed files; stashed files are kept in %s", plan.StartingBranch, ws.stashDir),
			multierr.Combine(publishErr, err),
		)
	}
	if publishErr != nil {
		return nil, interrupted(ctx, publishErr)
	}

	result.Duration = time.Since(started)
	o.log.Info("Website published",
		zap.String("branch", plan.HostingBranch),
		zap.Int("files", result.FilesPublished),
		zap.Bool("committed", result.Committed),
		zap.Bool("pushed", result.Pushed),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// build runs the generator into the workspace and verifies it produced
// at least one file.
func (o *Orchestrator) build(ctx context.Context, ws *workspace) (int, error) {
	source := filepath.Join(o.opts.RepoRoot, o.opts.SourceDir)
	if !o.opts.SourceOptional {
		if info, err := os.Stat(source); err != nil || !info.IsDir() {
			return 0, model.NewCLIError(
				model.ExitConfigError,
				fmt.Sprintf("site source directory %s does not exist", source),
			)
		}
	}

	req := model.BuildRequest{
		RepoRoot:  o.opts.RepoRoot,
		SourceDir: source,
		OutputDir: ws.buildDir,
	}

	err := o.step(ctx, model.StepBuild, "Building site", func() error {
		return o.builder.Build(ctx, req)
	}, zap.String("builder", o.builder.Name()))
	if err != nil {
		if model.ExitCodeOf(err) == model.ExitGeneralError {
			return 0, model.WrapCLIError(model.ExitBuildFailed, "site build failed", err)
		}
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := site.VerifyOutput(ws.buildDir)
	if errors.Is(err, site.ErrEmptyOutput) {
		return 0, model.WrapCLIError(
			model.ExitEmptyBuild,
			fmt.Sprintf("%s produced an empty site; refusing to replace %s", o.builder.Name(), o.opts.HostingBranch),
			err,
		)
	}
	if err != nil {
		return 0, model.WrapCLIError(model.ExitBuildFailed, "cannot read build output", err)
	}
	o.log.Debug("site built", zap.Int("files", n))
	return n, nil
}

// publish performs the mutating steps: branch switch, stash, wipe,
// install, add, commit and push.
func (o *Orchestrator) publish(ctx context.Context, plan *model.Plan, ws *workspace, res *model.PublishResult) error {
	repo := o.opts.RepoRoot
	branch := o.opts.HostingBranch

	if plan.HostingExists {
		if err := o.step(ctx, model.StepCheckout, "Checking out "+branch, func() error {
			return o.vcs.Checkout(ctx, repo, branch, false)
		}); err != nil {
			return err
		}
	} else {
		if err := o.step(ctx, model.StepCheckout, "Creating "+branch, func() error {
			return o.vcs.CheckoutOrphan(ctx, repo, branch)
		}); err != nil {
			return err
		}
		res.CreatedBranch = true
	}

	if err := o.step(ctx, model.StepStash, "Stashing untracked files", func() error {
		// Matched again on the hosting branch: its working tree and index
		// differ from the starting branch.
		names, err := o.stashCandidates(ctx)
		if err != nil {
			return err
		}
		// Record before moving so a partial move is still restored.
		res.StashedFiles = names
		o.log.Debug("stashing", zap.Strings("files", names))
		return stash.Move(repo, ws.stashDir, names)
	}); err != nil {
		return err
	}

	if err := o.step(ctx, model.StepWipe, "Removing current website", func() error {
		if err := o.vcs.RemoveAll(ctx, repo); err != nil {
			return err
		}
		return site.RemovePaths(repo, o.opts.WipePaths)
	}); err != nil {
		return err
	}

	if err := o.step(ctx, model.StepInstall, "Copying new website into place", func() error {
		return site.CopyTree(ws.buildDir, repo)
	}); err != nil {
		return err
	}

	// Only the site is staged. Ignored local files lost their .gitignore
	// in the wipe and must stay untracked.
	if err := o.step(ctx, model.StepPublish, "Adding files", func() error {
		entries, err := site.Entries(ws.buildDir)
		if err != nil {
			return err
		}
		return o.vcs.AddPaths(ctx, repo, entries)
	}); err != nil {
		return err
	}

	changed, err := o.vcs.HasStagedChanges(ctx, repo)
	if err != nil {
		return err
	}
	if !changed {
		o.log.Info("Website unchanged, nothing to commit", zap.String("step", model.StepPublish.String()))
	} else {
		if err := o.step(ctx, model.StepPublish, "Committing changes", func() error {
			return o.vcs.Commit(ctx, repo, o.opts.CommitMessage)
		}); err != nil {
			return err
		}
		res.Committed = true
	}

	if !o.opts.Push {
		o.log.Info("Skipping push", zap.String("step", model.StepPublish.String()))
		return nil
	}
	if err := o.step(ctx, model.StepPublish, "Pushing website", func() error {
		return o.vcs.Push(ctx, repo, o.opts.Remote, branch)
	}, zap.String("remote", o.opts.Remote)); err != nil {
		return err
	}
	res.Pushed = true
	return nil
}

// restore returns to the starting branch and moves the stashed files back.
// With rollback, or when a plain checkout fails, the checkout is forced
// and untracked leftovers of the hosting branch are cleaned first.
func (o *Orchestrator) restore(ctx context.Context, starting string, ws *workspace, rollback bool) error {
	repo := o.opts.RepoRoot
	o.log.Info("Restoring starting branch", zap.String("step", model.StepRestore.String()), zap.String("branch", starting))

	if !rollback {
		if err := o.vcs.Checkout(ctx, repo, starting, false); err != nil {
			o.log.Warn("checkout failed, forcing it", zap.String("branch", starting), zap.Error(err))
			rollback = true
		}
	}

	if rollback {
		if err := o.vcs.Checkout(ctx, repo, starting, true); err != nil {
			return err
		}
		if err := o.vcs.Clean(ctx, repo); err != nil {
			return err
		}
	}

	restored, err := stash.Restore(ws.stashDir, repo)
	if err != nil {
		return err
	}
	if len(restored) > 0 {
		o.log.Debug("restored stashed files", zap.Strings("files", restored))
	}
	return nil
}

// stashCandidates returns the top-level entries matching the stash
// patterns that git does not track in the current index.
func (o *Orchestrator) stashCandidates(ctx context.Context) ([]string, error) {
	names, err := stash.Match(o.opts.RepoRoot, o.opts.StashPatterns)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid stash pattern", err)
	}
	tracked, err := o.vcs.TrackedFiles(ctx, o.opts.RepoRoot, names)
	if err != nil {
		return nil, err
	}
	return stash.WithoutTracked(names, tracked), nil
}

// step narrates and runs one workflow step. It refuses to start a step
// once ctx is done.
func (o *Orchestrator) step(ctx context.Context, s model.Step, msg string, fn func() error, fields ...zap.Field) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.log.Info(msg, append([]zap.Field{zap.String("step", s.String())}, fields...)...)
	if err := fn(); err != nil {
		o.log.Debug("step failed", zap.String("step", s.String()), zap.Error(err))
		return err
	}
	return nil
}

// interrupted marks err as a cancellation when ctx was cancelled, so the
// process exits with ExitCancelled instead of the code of whichever
// command happened to be killed.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) && cliErr.Code == model.ExitCancelled {
		return err
	}
	return model.WrapCLIError(model.ExitCancelled, "publish interrupted", err)
}
