package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/pages-deploy/internal/config"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

func TestWriteDefaultConfig(t *testing.T) {
	repo := t.TempDir()

	path, err := writeDefaultConfig(repo, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(repo, ".pages-deploy.yml"), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestWriteDefaultConfig_Existing(t *testing.T) {
	tests := []struct {
		name     string
		existing string
	}{
		{"yaml", ".pages-deploy.yml"},
		{"json", ".pages-deploy.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := t.TempDir()
			existing := filepath.Join(repo, tt.existing)
			require.NoError(t, os.WriteFile(existing, []byte("{}"), 0644))

			_, err := writeDefaultConfig(repo, false)
			require.Error(t, err)
			assert.Equal(t, model.ExitConfigError, model.ExitCodeOf(err))
			assert.Contains(t, err.Error(), "--force")

			path, err := writeDefaultConfig(repo, true)
			require.NoError(t, err)
			_, err = config.Load(path)
			require.NoError(t, err)
		})
	}
}
