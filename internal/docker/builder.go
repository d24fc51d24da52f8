package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/pages-deploy/internal/builder"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// Paths the repository directories are mounted at inside the container.
const (
	ContainerSourceDir = "/srv/src"
	ContainerOutputDir = "/srv/site"
)

// DefaultImage returns the image used for a generator when none is
// configured. The "command" generator has no default.
func DefaultImage(gen model.Generator) string {
	switch gen {
	case model.GeneratorJekyll:
		return "jekyll/jekyll:4.2.2"
	case model.GeneratorHugo:
		return "hugomods/hugo:exts"
	default:
		return ""
	}
}

// BuilderOptions configures a container Builder.
type BuilderOptions struct {
	// Generator and Command select the command line, as for builder.Host.
	Generator model.Generator
	Command   []string

	// Image overrides DefaultImage(Generator).
	Image string

	// Pull forces an image pull before the build. Without it the image is
	// only pulled when it is not present locally.
	Pull bool

	// HostingBranch is recorded in the container labels.
	HostingBranch string

	// Stdout and Stderr receive the generator's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Builder is a builder.Builder that runs the generator in a throwaway
// container.
type Builder struct {
	cli  *Client
	opts BuilderOptions
	log  *zap.Logger
}

// NewBuilder creates a container Builder. The client must stay open for
// the lifetime of the Builder.
func NewBuilder(cli *Client, opts BuilderOptions, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Image == "" {
		opts.Image = DefaultImage(opts.Generator)
	}
	return &Builder{cli: cli, opts: opts, log: log}
}

// Name returns the generator name with the image, e.g. "hugo (hugomods/hugo:exts)".
func (b *Builder) Name() string {
	return fmt.Sprintf("%s (%s)", b.opts.Generator, b.opts.Image)
}

// Build runs the generator in a container and waits for it to exit. The
// container is always removed, even when ctx is cancelled.
func (b *Builder) Build(ctx context.Context, req model.BuildRequest) error {
	if err := req.Validate(); err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "invalid build request", err)
	}
	if b.opts.Image == "" {
		return model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("site.docker.image is required for generator %q", b.opts.Generator),
		)
	}

	argv, err := builder.CommandLine(b.opts.Generator, b.opts.Command, ContainerSourceDir, ContainerOutputDir)
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "cannot build site", err)
	}

	labels := BuildLabels(&model.BuildContainer{
		RepoRoot:      req.RepoRoot,
		HostingBranch: b.opts.HostingBranch,
		Generator:     b.opts.Generator,
		CreatedAt:     time.Now(),
	})
	cfg, hostCfg := buildContainerConfig(req, b.opts.Image, argv, labels, hostUser())

	if b.opts.Pull {
		if err := b.pull(ctx); err != nil {
			return err
		}
	}

	id, err := b.create(ctx, cfg, hostCfg)
	if err != nil {
		return err
	}
	defer b.remove(context.WithoutCancel(ctx), id)

	return b.run(ctx, id)
}

// create creates the container, pulling the image once if it is missing.
func (b *Builder) create(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	resp, err := b.cli.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil && cerrdefs.IsNotFound(err) && !b.opts.Pull {
		if pullErr := b.pull(ctx); pullErr != nil {
			return "", pullErr
		}
		resp, err = b.cli.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	}
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("failed to create build container from %s", b.opts.Image),
			err,
		)
	}
	for _, w := range resp.Warnings {
		b.log.Warn("docker warning", zap.String("warning", w))
	}
	b.log.Debug("created build container", zap.String("id", shortID(resp.ID)), zap.String("image", b.opts.Image))
	return resp.ID, nil
}

// run starts the container, streams its logs and checks the exit status.
func (b *Builder) run(ctx context.Context, id string) error {
	// Register the wait before starting so a fast exit is not missed.
	waitCh, errCh := b.cli.api.ContainerWait(ctx, id, container.WaitConditionNextExit)

	if err := b.cli.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "failed to start build container", err)
	}

	logs, err := b.cli.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "failed to attach to build container logs", err)
	}
	defer func() { _ = logs.Close() }()

	if _, err := stdcopy.StdCopy(writerOrDiscard(b.opts.Stdout), writerOrDiscard(b.opts.Stderr), logs); err != nil && ctx.Err() == nil {
		b.log.Warn("build log stream ended early", zap.Error(err))
	}

	select {
	case res := <-waitCh:
		if res.Error != nil {
			return model.NewCLIError(model.ExitBuildFailed, fmt.Sprintf("build container failed: %s", res.Error.Message))
		}
		if res.StatusCode != 0 {
			return model.NewCLIError(
				model.ExitBuildFailed,
				fmt.Sprintf("%s build failed in container (exit %d)", b.opts.Generator, res.StatusCode),
			)
		}
		return nil
	case err := <-errCh:
		return model.WrapCLIError(model.ExitBuildFailed, "failed waiting for build container", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pull pulls the image, draining the progress stream.
func (b *Builder) pull(ctx context.Context) error {
	b.log.Info("Pulling image", zap.String("image", b.opts.Image))
	rc, err := b.cli.api.ImagePull(ctx, b.opts.Image, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, fmt.Sprintf("failed to pull %s", b.opts.Image), err)
	}
	defer func() { _ = rc.Close() }()

	// The pull only completes once the stream is read to the end.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, fmt.Sprintf("failed to pull %s", b.opts.Image), err)
	}
	return nil
}

func (b *Builder) remove(ctx context.Context, id string) {
	if err := RemoveContainer(ctx, b.cli, id, true); err != nil {
		b.log.Warn("failed to remove build container; run `pages-deploy prune`",
			zap.String("id", shortID(id)), zap.Error(err))
	}
}

// buildContainerConfig assembles the container and host configuration.
// The source directory is mounted at ContainerSourceDir and the output
// directory at ContainerOutputDir; the generator runs from the source
// mount. A custom command may run without a source directory, in which
// case the repository root is mounted there instead. user is "uid:gid",
// or empty to keep the image default.
func buildContainerConfig(req model.BuildRequest, img string, argv []string, labels map[string]string, user string) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:      img,
		Entrypoint: argv[:1],
		Cmd:        argv[1:],
		WorkingDir: ContainerSourceDir,
		Labels:     labels,
		User:       user,
	}

	source := req.SourceDir
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		source = req.RepoRoot
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: source, Target: ContainerSourceDir},
			{Type: mount.TypeBind, Source: req.OutputDir, Target: ContainerOutputDir},
		},
	}

	return cfg, hostCfg
}

// hostUser returns "uid:gid" of the current process so files written to
// the output mount are owned by the invoking user. Windows has no uids.
func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
