// Package stash moves allow-listed untracked files out of the working tree
// while the hosting branch is checked out, and puts them back afterwards.
//
// Only top-level entries of the repository are considered. Typical entries
// are IDE metadata (.project, .settings, *.iml) and local helper files that
// are neither part of the source branch nor of the published site.
package stash

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/mmr-tortoise/pages-deploy/internal/site"
)

// ErrDestinationExists is returned by Restore when an entry with the same
// name as a stashed file already exists in the repository.
var ErrDestinationExists = errors.New("destination already exists")

// Match returns the names of the top-level entries of repoRoot that match
// any of the glob patterns. The result is sorted and de-duplicated. The
// .git entry never matches.
func Match(repoRoot string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(repoRoot, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid stash pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			name := filepath.Base(m)
			if name == ".git" {
				continue
			}
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// WithoutTracked drops the names that are, or contain, a tracked file.
// tracked holds index paths as printed by git, with "/" separators.
//
// A tracked entry is not a local file: git removes it from the working tree
// on the way to the hosting branch and brings it back on the way home.
// Stashing it as well would leave two copies competing for one path.
func WithoutTracked(names, tracked []string) []string {
	if len(tracked) == 0 {
		return names
	}

	kept := make([]string, 0, len(names))
	for _, name := range names {
		isTracked := false
		for _, t := range tracked {
			if t == name || strings.HasPrefix(t, name+"/") {
				isTracked = true
				break
			}
		}
		if !isTracked {
			kept = append(kept, name)
		}
	}
	return kept
}

// Move moves each named top-level entry from repoRoot into stashDir.
// Entries are renamed where possible and copied then removed when the two
// directories are on different filesystems.
func Move(repoRoot, stashDir string, names []string) error {
	for _, name := range names {
		if err := move(filepath.Join(repoRoot, name), filepath.Join(stashDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Restore moves every entry of stashDir back into repoRoot and returns the
// restored names. It refuses to overwrite an existing entry: such entries
// are left in stashDir and reported with ErrDestinationExists, while the
// remaining entries are still restored.
//
// A regular file whose destination already holds identical content counts
// as restored and its stashed copy is dropped. Callers filter tracked
// entries with WithoutTracked, so this only covers a file that appeared
// in both places by other means.
func Restore(stashDir, repoRoot string) ([]string, error) {
	entries, err := os.ReadDir(stashDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read stash directory %s: %w", stashDir, err)
	}

	var restored []string
	var errs error
	for _, entry := range entries {
		name := entry.Name()
		dst := filepath.Join(repoRoot, name)

		src := filepath.Join(stashDir, name)
		if _, err := os.Lstat(dst); err == nil {
			if same, _ := sameFile(src, dst); same {
				if err := os.Remove(src); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("drop stashed copy of %s: %w", name, err))
					continue
				}
				restored = append(restored, name)
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("restore %s: %w", dst, ErrDestinationExists))
			continue
		} else if !os.IsNotExist(err) {
			errs = multierr.Append(errs, fmt.Errorf("restore %s: %w", dst, err))
			continue
		}

		if err := move(src, dst); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		restored = append(restored, name)
	}

	return restored, errs
}

// move renames src to dst, falling back to a recursive copy followed by
// removal of src when rename fails (typically EXDEV across filesystems).
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := site.CopyPath(src, dst, true); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("failed to remove %s after copying: %w", src, err)
	}
	return nil
}

// sameFile reports whether a and b are both regular files with identical
// content and permissions.
func sameFile(a, b string) (bool, error) {
	infoA, err := os.Lstat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Lstat(b)
	if err != nil {
		return false, err
	}
	if !infoA.Mode().IsRegular() || !infoB.Mode().IsRegular() {
		return false, nil
	}
	if infoA.Size() != infoB.Size() || infoA.Mode().Perm() != infoB.Mode().Perm() {
		return false, nil
	}

	dataA, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(dataA, dataB), nil
}
