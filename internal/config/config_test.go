package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// writeFile creates name inside dir with the given contents.
func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "gh-pages", cfg.Branch)
	assert.Equal(t, "origin", cfg.Remote)
	assert.Equal(t, "Update website", cfg.Message)
	assert.True(t, cfg.Push)
	assert.Equal(t, model.GeneratorJekyll, cfg.Site.Generator)
	assert.Equal(t, "website", cfg.Site.Source)
	assert.False(t, cfg.Site.Docker.Enabled)
	assert.Equal(t, []string{".classpath", ".project", ".settings", "*.iml", "overlay.png", "*.properties", "*.rb"}, cfg.Stash)
	assert.Equal(t, []string{"src", "target"}, cfg.Wipe)
	assert.Empty(t, Validate(cfg), "defaults must be valid")
}

func TestFind(t *testing.T) {
	dir := t.TempDir()

	_, ok := Find(dir)
	assert.False(t, ok, "empty directory has no config")

	jsonPath := writeFile(t, dir, ".pages-deploy.json", "{}")
	path, ok := Find(dir)
	require.True(t, ok)
	assert.Equal(t, jsonPath, path)

	// YAML takes priority over JSON.
	ymlPath := writeFile(t, dir, ".pages-deploy.yml", "branch: site\n")
	path, ok = Find(dir)
	require.True(t, ok)
	assert.Equal(t, ymlPath, path)
}

// TestFind_IgnoresDirectory verifies a directory with a config file name
// does not count.
func TestFind_IgnoresDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".pages-deploy.yml"), 0755))

	_, ok := Find(dir)
	assert.False(t, ok)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".pages-deploy.yml", `
branch: pages
push: false
site:
  generator: hugo
  source: docs
  docker:
    enabled: true
    pull: true
stash: ["*.iml"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pages", cfg.Branch)
	assert.False(t, cfg.Push)
	assert.Equal(t, model.GeneratorHugo, cfg.Site.Generator)
	assert.Equal(t, "docs", cfg.Site.Source)
	assert.True(t, cfg.Site.Docker.Enabled)
	assert.True(t, cfg.Site.Docker.Pull)
	assert.Empty(t, cfg.Site.Docker.Image)
	assert.Equal(t, []string{"*.iml"}, cfg.Stash, "a configured list replaces the default")

	// Fields absent from the file keep their defaults.
	assert.Equal(t, "origin", cfg.Remote)
	assert.Equal(t, "Update website", cfg.Message)
	assert.Equal(t, []string{"src", "target"}, cfg.Wipe)
}

// TestLoad_JSONC verifies comments and trailing commas are accepted.
func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".pages-deploy.json", `{
  // publish the docs folder
  "site": {
    "generator": "command",
    "source": "docs",
    "command": ["mkdocs", "build", "-f", "{source}/mkdocs.yml", "-d", "{output}"], /* argv */
  },
  "wipe": [],
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, model.GeneratorCommand, cfg.Site.Generator)
	assert.Equal(t, []string{"mkdocs", "build", "-f", "{source}/mkdocs.yml", "-d", "{output}"}, cfg.Site.Command)
	assert.Empty(t, cfg.Wipe)
	assert.Equal(t, "gh-pages", cfg.Branch)
}

func TestLoad_EmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".pages-deploy.yaml", "# nothing configured\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.yml")},
		{"unknown yaml field", writeFile(t, dir, "typo.yml", "branchh: pages\n")},
		{"malformed yaml", writeFile(t, dir, "bad.yml", "branch: [unclosed\n")},
		{"unknown json field", writeFile(t, dir, "typo.json", `{"remot": "upstream"}`)},
		{"malformed json", writeFile(t, dir, "bad.json", `{"branch": }`)},
		{"unsupported extension", writeFile(t, dir, "config.toml", `branch = "pages"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.Equal(t, model.ExitConfigError, model.ExitCodeOf(err))
		})
	}
}

func TestLoadForRepo(t *testing.T) {
	dir := t.TempDir()

	cfg, path, err := LoadForRepo(dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)

	want := writeFile(t, dir, ".pages-deploy.yml", "message: Publish docs\n")
	cfg, path, err = LoadForRepo(dir)
	require.NoError(t, err)
	assert.Equal(t, want, path)
	assert.Equal(t, "Publish docs", cfg.Message)
}

// TestMarshal_LoadsBack checks that the file written by init is accepted
// by Load and reproduces the configuration.
func TestMarshal_LoadsBack(t *testing.T) {
	cfg := Default()
	cfg.Site.Docker.Enabled = true

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# pages-deploy configuration")

	path := filepath.Join(t.TempDir(), "nested", ".pages-deploy.yml")
	require.NoError(t, Write(path, data))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
