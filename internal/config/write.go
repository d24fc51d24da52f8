package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// header is prepended to generated config files.
const header = `# pages-deploy configuration
# Generated by "pages-deploy init". Every field is optional; removed fields
# fall back to the defaults shown here.
`

// Marshal serializes cfg to YAML with a header comment.
func Marshal(cfg *Config) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config YAML: %w", err)
	}
	return []byte(header + string(yamlBytes)), nil
}

// Write writes data to path, creating parent directories as needed.
func Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	// #nosec G306: config files are meant to be committed and shared.
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
