package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
	"github.com/mmr-tortoise/pages-deploy/internal/runner"
)

// Manager provides Git operations by invoking the git CLI.
//
// It is stateless with respect to the repository; every method receives
// the repository path as a parameter.
type Manager struct {
	run runner.Runner
}

// NewManager creates a Manager that runs git through an ExecRunner.
func NewManager() *Manager {
	return &Manager{run: runner.NewExecRunner()}
}

// NewManagerWithRunner creates a Manager that runs git through r.
// A nil runner falls back to an ExecRunner.
func NewManagerWithRunner(r runner.Runner) *Manager {
	if r == nil {
		r = runner.NewExecRunner()
	}
	return &Manager{run: r}
}

// RepoRoot returns the absolute path to the top-level directory of the
// Git repository containing the given path.
//
// This uses `git rev-parse --show-toplevel` which works correctly for both
// the main repository and worktrees.
func (m *Manager) RepoRoot(ctx context.Context, path string) (string, error) {
	output, err := m.git(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// IsClean reports whether the working tree has no staged, unstaged or
// untracked changes. Ignored files do not count.
//
// `git status --porcelain` prints one line per change and nothing at all
// for a clean tree, which is a stable contract unlike the human-readable
// "nothing to commit" text.
func (m *Manager) IsClean(ctx context.Context, repoPath string) (bool, error) {
	output, err := m.git(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) == "", nil
}

// Branches lists the local branches, marking the checked-out one.
func (m *Manager) Branches(ctx context.Context, repoPath string) ([]model.Branch, error) {
	output, err := m.git(ctx, repoPath, "branch", "--no-color")
	if err != nil {
		return nil, err
	}
	return ParseBranchList(output), nil
}

// BranchExists reports whether refs/heads/<branch> exists.
func (m *Manager) BranchExists(ctx context.Context, repoPath, branch string) bool {
	_, err := m.git(ctx, repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// Checkout switches to an existing branch. With force, local modifications
// in the working tree and index are discarded; rollback uses this to leave
// a half-built hosting branch.
func (m *Manager) Checkout(ctx context.Context, repoPath, branch string, force bool) error {
	args := []string{"checkout", "-q"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, branch)
	_, err := m.git(ctx, repoPath, args...)
	return err
}

// CheckoutOrphan creates and switches to a branch with no history.
// The index keeps the previous branch's files until RemoveAll clears it.
func (m *Manager) CheckoutOrphan(ctx context.Context, repoPath, branch string) error {
	_, err := m.git(ctx, repoPath, "checkout", "-q", "--orphan", branch)
	return err
}

// RemoveAll removes every tracked file from the index and the working tree.
//
// --ignore-unmatch keeps the command from failing on an empty index, which
// is the state of an existing hosting branch with no files.
func (m *Manager) RemoveAll(ctx context.Context, repoPath string) error {
	_, err := m.git(ctx, repoPath, "rm", "-r", "-f", "-q", "--ignore-unmatch", ".")
	return err
}

// AddPaths stages the given top-level paths, including deletions and
// untracked files below them.
//
// The hosting branch is staged path by path instead of with `git add -A .`:
// once RemoveAll has deleted the branch's .gitignore, a repository-wide add
// would also pick up every ignored local file (.env, node_modules, build
// caches) and publish it. Deletions of everything else were already staged
// by RemoveAll. Paths are literal, so a file named "*.html" or ":x" is not
// taken for a pathspec pattern.
func (m *Manager) AddPaths(ctx context.Context, repoPath string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"--literal-pathspecs", "add", "-A", "--"}, paths...)
	_, err := m.git(ctx, repoPath, args...)
	return err
}

// HasStagedChanges reports whether the index or the tracked files differ
// from HEAD. Untracked files, ignored or not, are not considered, so local
// files left in the working tree of the hosting branch never force a
// commit. On an unborn (orphan) branch every staged file counts.
func (m *Manager) HasStagedChanges(ctx context.Context, repoPath string) (bool, error) {
	output, err := m.git(ctx, repoPath, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// TrackedFiles returns the files in the index at or below the given paths,
// with "/" separators. An empty paths list returns nothing rather than the
// whole index.
func (m *Manager) TrackedFiles(ctx context.Context, repoPath string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := append([]string{"--literal-pathspecs", "ls-files", "-z", "--"}, paths...)
	output, err := m.git(ctx, repoPath, args...)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range strings.Split(output, "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// Commit records the staged changes with the given message.
func (m *Manager) Commit(ctx context.Context, repoPath, message string) error {
	_, err := m.git(ctx, repoPath, "commit", "-q", "-m", message)
	return err
}

// Push pushes the branch to the remote.
func (m *Manager) Push(ctx context.Context, repoPath, remote, branch string) error {
	_, err := m.git(ctx, repoPath, "push", remote, branch)
	return err
}

// Clean deletes untracked files and directories. Ignored files are kept.
func (m *Manager) Clean(ctx context.Context, repoPath string) error {
	_, err := m.git(ctx, repoPath, "clean", "-f", "-d", "-q")
	return err
}

// git runs `git -C repoPath args...`. Failures become ExitGitError.
func (m *Manager) git(ctx context.Context, repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	res, err := m.run.Run(ctx, repoPath, "git", fullArgs...)
	if err != nil {
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}
	return res.Stdout, nil
}

// ParseBranchList parses `git branch --no-color` output.
//
// Each line is a branch name prefixed by two marker columns:
//
//	* main
//	  gh-pages
//	+ feature        (checked out in another worktree)
//	* (HEAD detached at 1a2b3c4)
//
// The "*" marks the current branch. A parenthesised name is the detached
// HEAD pseudo-entry, not a branch.
func ParseBranchList(output string) []model.Branch {
	var branches []model.Branch

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		current := strings.HasPrefix(line, "*")
		name := strings.TrimSpace(strings.TrimLeft(line, "*+ "))
		if name == "" {
			continue
		}

		branches = append(branches, model.Branch{
			Name:     name,
			Current:  current,
			Detached: strings.HasPrefix(name, "("),
		})
	}

	return branches
}
