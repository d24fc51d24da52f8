// Package config handles the optional per-repository configuration file of
// pages-deploy.
//
// The file lives in the repository root and may be written in YAML
// (.pages-deploy.yml / .pages-deploy.yaml) or JSONC (.pages-deploy.json).
// JSONC files may contain comments and trailing commas; they are cleaned
// with github.com/tidwall/jsonc before being parsed by encoding/json.
//
// A repository without a config file gets Default(), which reproduces the
// behaviour of the original publishing script: jekyll builds "website" into
// the "gh-pages" branch of "origin".
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// FileNames lists the config file names searched in the repository root,
// in priority order.
var FileNames = []string{
	".pages-deploy.yml",
	".pages-deploy.yaml",
	".pages-deploy.json",
}

// Config is the complete pages-deploy configuration.
type Config struct {
	// Branch is the hosting branch the built site is committed to.
	Branch string `yaml:"branch" json:"branch"`

	// Remote is the remote the hosting branch is pushed to.
	Remote string `yaml:"remote" json:"remote"`

	// Message is the commit message used on the hosting branch.
	Message string `yaml:"message" json:"message"`

	// Push controls whether the hosting branch is pushed after the commit.
	Push bool `yaml:"push" json:"push"`

	// Site configures the static-site build.
	Site SiteConfig `yaml:"site" json:"site"`

	// Stash lists glob patterns of untracked top-level files that survive
	// the branch switch (IDE metadata, local helper scripts).
	Stash []string `yaml:"stash" json:"stash"`

	// Wipe lists build-artifact directories removed from the hosting branch
	// working tree before the new site is copied in.
	Wipe []string `yaml:"wipe" json:"wipe"`
}

// SiteConfig describes how the site is generated.
type SiteConfig struct {
	// Generator selects the static-site generator.
	Generator model.Generator `yaml:"generator" json:"generator"`

	// Source is the generator's source directory, relative to the repo root.
	Source string `yaml:"source" json:"source"`

	// Command is the argv used when Generator is "command". The
	// placeholders {source} and {output} are replaced with absolute paths.
	// Without {source} the source directory need not exist.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// Docker runs the generator in a container instead of on the host.
	Docker DockerConfig `yaml:"docker" json:"docker"`
}

// DockerConfig configures containerised builds.
type DockerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Image overrides the default image for the generator.
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	// Pull forces an image pull before every build.
	Pull bool `yaml:"pull" json:"pull"`
}

// Default returns the configuration used when the repository has no
// config file.
func Default() *Config {
	return &Config{
		Branch:  "gh-pages",
		Remote:  "origin",
		Message: "Update website",
		Push:    true,
		Site: SiteConfig{
			Generator: model.GeneratorJekyll,
			Source:    "website",
		},
		Stash: []string{
			".classpath",
			".project",
			".settings",
			"*.iml",
			"overlay.png",
			"*.properties",
			"*.rb",
		},
		Wipe: []string{"src", "target"},
	}
}

// Find returns the path of the first config file present in repoRoot.
// The boolean is false when the repository has none.
func Find(repoRoot string) (string, bool) {
	for _, name := range FileNames {
		path := filepath.Join(repoRoot, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Load reads a config file. Fields missing from the file keep their
// Default() values; unknown fields are rejected so that typos do not
// silently fall back to defaults.
//
// Every error is a CLIError with ExitConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to read config file %s", path),
			err,
		)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// A file without any document decodes to io.EOF; keep the defaults.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("failed to parse config file %s", path),
				err,
			)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("failed to parse config file %s", path),
				err,
			)
		}
	default:
		return nil, model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("unsupported config file extension %q (use .yml, .yaml or .json)", filepath.Ext(path)),
		)
	}

	return cfg, nil
}

// LoadForRepo loads the repository's config file, or returns Default()
// when there is none. The returned path is empty in the latter case.
func LoadForRepo(repoRoot string) (*Config, string, error) {
	path, ok := Find(repoRoot)
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
