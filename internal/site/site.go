// Package site provides filesystem helpers for the built website: checking
// that a build produced output, copying the output into the working tree of
// the hosting branch, and removing build artifacts that must not be
// published.
package site

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyOutput is returned by VerifyOutput when the build directory
// contains no files. Publishing such a build would wipe the hosting branch.
var ErrEmptyOutput = errors.New("build produced no files")

// CountFiles returns the number of regular files below dir.
func CountFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("error walking %s: %w", path, walkErr)
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// VerifyOutput returns the number of files in a build directory, or
// ErrEmptyOutput when there are none.
func VerifyOutput(dir string) (int, error) {
	n, err := CountFiles(dir)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", dir, ErrEmptyOutput)
	}
	return n, nil
}

// Entries returns the sorted names of the top-level entries of dir, the
// same set CopyTree installs. It is used to stage exactly the site on the
// hosting branch.
func Entries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// CopyTree copies the contents of srcDir into dstDir, which must already
// exist. File modes are preserved, symbolic links are recreated as links
// rather than followed, and any .git entry in the source is skipped.
// Existing destination files are overwritten.
func CopyTree(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("error walking source directory at %s: %w", path, walkErr)
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		if relPath == "." {
			return nil
		}
		if d.Name() == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		return CopyPath(path, filepath.Join(dstDir, relPath), false)
	})
}

// CopyPath copies a file, symlink or directory. Directories are only
// created unless recursive is set.
func CopyPath(src, dst string, recursive bool) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("failed to read symlink %s: %w", src, err)
		}
		// os.Symlink refuses to replace an existing entry.
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to replace %s: %w", dst, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", dst, err)
		}
		return nil

	case info.IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dst, err)
		}
		if recursive {
			return CopyTree(src, dst)
		}
		return nil

	default:
		return copyFile(src, dst, info.Mode().Perm())
	}
}

// RemovePaths deletes each path (relative to root) and everything below
// it. Missing paths are ignored. A path that resolves outside root, or to
// root itself, is refused before anything is removed.
func RemovePaths(root string, paths []string) error {
	targets := make([]string, 0, len(paths))
	for _, p := range paths {
		target, err := within(root, p)
		if err != nil {
			return err
		}
		targets = append(targets, target)
	}

	for _, target := range targets {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to remove %s: %w", target, err)
		}
	}
	return nil
}

func within(root, p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("path %q must be relative to %s", p, root)
	}
	target := filepath.Join(root, p)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q against %s: %w", p, root, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", p, root)
	}
	return target, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	// OpenFile only applies the mode to new files.
	return os.Chmod(dst, mode)
}
