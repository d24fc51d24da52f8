package deploy

import (
	"fmt"
	"os"
	"path/filepath"
)

// workspace holds the two temporary directories of a run.
type workspace struct {
	root     string
	stashDir string
	buildDir string
}

// newWorkspace creates a fresh temporary root below base (os.TempDir when
// empty) with "stash" and "website" subdirectories.
func newWorkspace(base string) (*workspace, error) {
	root, err := os.MkdirTemp(base, "pages-deploy-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}

	ws := &workspace{
		root:     root,
		stashDir: filepath.Join(root, "stash"),
		buildDir: filepath.Join(root, "website"),
	}
	for _, dir := range []string{ws.stashDir, ws.buildDir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			_ = os.RemoveAll(root)
			return nil, fmt.Errorf("failed to create temporary directory: %w", err)
		}
	}
	return ws, nil
}

// cleanup removes the workspace. With keepStash the stash directory and
// the root holding it survive so that files which could not be restored
// are not lost.
func (ws *workspace) cleanup(keepStash bool) error {
	if !keepStash {
		return os.RemoveAll(ws.root)
	}
	return os.RemoveAll(ws.buildDir)
}
