// Package builder runs the static-site generator that turns the source
// directory into a publishable website.
//
// Builders share one command-line template per generator (see CommandLine)
// so the host builder here and the container builder in internal/docker
// run exactly the same program.
package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
	"github.com/mmr-tortoise/pages-deploy/internal/runner"
)

// Builder produces the static site described by a BuildRequest.
type Builder interface {
	// Name identifies the builder in log output (e.g., "jekyll").
	Name() string

	// Build writes the site into req.OutputDir. A non-nil error means the
	// generator failed; the output directory must then be ignored.
	Build(ctx context.Context, req model.BuildRequest) error
}

// Placeholders substituted in custom command lines.
const (
	SourcePlaceholder = "{source}"
	OutputPlaceholder = "{output}"
)

// CommandLine returns the argv that builds source into output with the
// given generator. custom is only used by GeneratorCommand.
func CommandLine(gen model.Generator, custom []string, source, output string) ([]string, error) {
	switch gen {
	case model.GeneratorJekyll:
		return []string{"jekyll", "build", "-s", source, "-d", output}, nil
	case model.GeneratorHugo:
		return []string{"hugo", "--source", source, "--destination", output}, nil
	case model.GeneratorCommand:
		if len(custom) == 0 {
			return nil, fmt.Errorf("generator %q requires a command", gen)
		}
		argv := make([]string, len(custom))
		for i, arg := range custom {
			arg = strings.ReplaceAll(arg, SourcePlaceholder, source)
			argv[i] = strings.ReplaceAll(arg, OutputPlaceholder, output)
		}
		return argv, nil
	default:
		return nil, fmt.Errorf("unsupported generator %q", gen)
	}
}

// UsesSource reports whether the generator reads the source directory.
// A custom command only does when one of its arguments carries
// SourcePlaceholder.
func UsesSource(gen model.Generator, custom []string) bool {
	if gen != model.GeneratorCommand {
		return true
	}
	for _, arg := range custom {
		if strings.Contains(arg, SourcePlaceholder) {
			return true
		}
	}
	return false
}

// Host runs the generator directly on the host, from the repository root.
type Host struct {
	run    runner.Runner
	gen    model.Generator
	custom []string
}

// NewHost creates a Host builder. A nil runner falls back to an ExecRunner.
func NewHost(r runner.Runner, gen model.Generator, custom []string) *Host {
	if r == nil {
		r = runner.NewExecRunner()
	}
	return &Host{run: r, gen: gen, custom: custom}
}

// Name returns the generator name.
func (h *Host) Name() string {
	return h.gen.String()
}

// Build runs the generator. Failures, including a generator that is not
// installed, are reported as CLIError with ExitBuildFailed.
func (h *Host) Build(ctx context.Context, req model.BuildRequest) error {
	if err := req.Validate(); err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "invalid build request", err)
	}

	argv, err := CommandLine(h.gen, h.custom, req.SourceDir, req.OutputDir)
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "cannot build site", err)
	}

	if _, err := h.run.Run(ctx, req.RepoRoot, argv[0], argv[1:]...); err != nil {
		return model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("%s build failed", h.gen),
			err,
		)
	}
	return nil
}
