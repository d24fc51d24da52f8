package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/pages-deploy/internal/config"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// changedSet returns a Changed-style lookup reporting the given flags as set.
func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestApplyPublishFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   publishFlags
		changed []string
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name:    "unset flags keep config values",
			flags:   publishFlags{branch: "ignored", noPush: true},
			changed: nil,
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.Default(), cfg)
			},
		},
		{
			name:    "strings override",
			flags:   publishFlags{branch: "pages", remote: "upstream", message: "Deploy", source: "docs"},
			changed: []string{"branch", "remote", "message", "source"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "pages", cfg.Branch)
				assert.Equal(t, "upstream", cfg.Remote)
				assert.Equal(t, "Deploy", cfg.Message)
				assert.Equal(t, "docs", cfg.Site.Source)
			},
		},
		{
			name:    "generator",
			flags:   publishFlags{generator: "hugo"},
			changed: []string{"generator"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, model.GeneratorHugo, cfg.Site.Generator)
			},
		},
		{
			name:    "no-push disables push",
			flags:   publishFlags{noPush: true},
			changed: []string{"no-push"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.False(t, cfg.Push)
			},
		},
		{
			name:    "image implies docker",
			flags:   publishFlags{image: "ruby:3.3"},
			changed: []string{"image"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.True(t, cfg.Site.Docker.Enabled)
				assert.Equal(t, "ruby:3.3", cfg.Site.Docker.Image)
			},
		},
		{
			name:    "docker flag",
			flags:   publishFlags{docker: true},
			changed: []string{"docker"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.True(t, cfg.Site.Docker.Enabled)
				assert.Empty(t, cfg.Site.Docker.Image)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			flags := tt.flags
			require.NoError(t, applyPublishFlags(cfg, &flags, changedSet(tt.changed...)))
			tt.check(t, cfg)
		})
	}
}

func TestApplyPublishFlags_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		flags   publishFlags
		changed []string
	}{
		{"unknown generator", publishFlags{generator: "gatsby"}, []string{"generator"}},
		{"command generator without command", publishFlags{generator: "command"}, []string{"generator"}},
		{"empty branch", publishFlags{branch: ""}, []string{"branch"}},
		{"bad branch name", publishFlags{branch: "gh pages"}, []string{"branch"}},
		{"source escaping repo", publishFlags{source: "../site"}, []string{"source"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := tt.flags
			err := applyPublishFlags(config.Default(), &flags, changedSet(tt.changed...))
			require.Error(t, err)
			assert.Equal(t, model.ExitConfigError, model.ExitCodeOf(err))
		})
	}
}

func TestDeployOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Push = false

	opts := deployOptions("/repo", cfg)

	assert.Equal(t, "/repo", opts.RepoRoot)
	assert.Equal(t, "gh-pages", opts.HostingBranch)
	assert.Equal(t, "origin", opts.Remote)
	assert.Equal(t, "Update website", opts.CommitMessage)
	assert.Equal(t, "website", opts.SourceDir)
	assert.False(t, opts.SourceOptional)
	assert.Equal(t, cfg.Stash, opts.StashPatterns)
	assert.Equal(t, []string{"src", "target"}, opts.WipePaths)
	assert.False(t, opts.Push)
	assert.Empty(t, opts.TempDir)
}

func TestDeployOptions_CommandWithoutSource(t *testing.T) {
	cfg := config.Default()
	cfg.Site.Generator = model.GeneratorCommand
	cfg.Site.Command = []string{"make", "site", "OUT={output}"}

	assert.True(t, deployOptions("/repo", cfg).SourceOptional)

	cfg.Site.Command = []string{"mkdocs", "build", "-f", "{source}/mkdocs.yml", "-d", "{output}"}
	assert.False(t, deployOptions("/repo", cfg).SourceOptional)
}

func TestNewRootCommand_Flags(t *testing.T) {
	root := NewRootCommand()

	for _, name := range []string{"json", "verbose", "config", "repo"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing persistent flag --%s", name)
	}
	for _, name := range []string{"branch", "remote", "message", "source", "generator", "no-push", "docker", "image"} {
		assert.NotNil(t, root.Flags().Lookup(name), "root must accept publish flag --%s", name)
	}

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"publish", "plan", "init", "prune"})
}
