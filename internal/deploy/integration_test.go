package deploy

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/pages-deploy/internal/git"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return strings.TrimSpace(string(output))
}

// setupPublishRepo creates a repository on main with a site source
// directory, two ignored local files and a bare "origin" remote. It
// returns the repository and remote paths.
func setupPublishRepo(t *testing.T) (string, string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	repo := t.TempDir()
	gitCmd(t, repo, "init", "-q")
	gitCmd(t, repo, "checkout", "-q", "-b", "main")
	gitCmd(t, repo, "config", "user.email", "test@example.com")
	gitCmd(t, repo, "config", "user.name", "Test User")
	gitCmd(t, repo, "config", "commit.gpgsign", "false")

	files := map[string]string{
		"README.md":        "# Project\n",
		".gitignore":       "README.dev\n.settings/\n",
		"website/index.md": "# Hello\n",
	}
	for name, contents := range files {
		path := filepath.Join(repo, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	}
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "-q", "-m", "initial commit")

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.dev"), []byte("local notes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".settings"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".settings", "prefs"), []byte("x=1"), 0644))

	remote := filepath.Join(t.TempDir(), "remote.git")
	gitCmd(t, filepath.Dir(remote), "init", "-q", "--bare", remote)
	gitCmd(t, repo, "remote", "add", "origin", remote)

	return repo, remote
}

func integrationOptions(t *testing.T, repo string) Options {
	t.Helper()
	opts := testOptions(repo, t.TempDir())
	opts.WipePaths = nil
	return opts
}

func TestIntegration_PublishCycle(t *testing.T) {
	ctx := context.Background()
	repo, remote := setupPublishRepo(t)
	vcs := git.NewManager()

	res, err := New(vcs, siteBuilder(), nil, integrationOptions(t, repo)).Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.CreatedBranch)
	assert.True(t, res.Committed)
	assert.True(t, res.Pushed)

	// Back on main with a clean tree and the local files in place.
	assert.Equal(t, "main", gitCmd(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
	clean, err := vcs.IsClean(ctx, repo)
	require.NoError(t, err)
	assert.True(t, clean)
	data, err := os.ReadFile(filepath.Join(repo, "README.dev"))
	require.NoError(t, err)
	assert.Equal(t, "local notes", string(data))
	data, err = os.ReadFile(filepath.Join(repo, ".settings", "prefs"))
	require.NoError(t, err)
	assert.Equal(t, "x=1", string(data))
	assert.NoFileExists(t, filepath.Join(repo, "index.html"))

	// The hosting branch holds exactly the site and shares no history with main.
	assert.Equal(t, "css/site.css\nindex.html", gitCmd(t, repo, "ls-tree", "-r", "--name-only", "gh-pages"))
	cmd := exec.Command("git", "-C", repo, "merge-base", "main", "gh-pages")
	assert.Error(t, cmd.Run(), "gh-pages must be an orphan branch")
	assert.Equal(t, "Update website", gitCmd(t, repo, "log", "-1", "--format=%s", "gh-pages"))

	// The remote received the branch.
	assert.Equal(t,
		gitCmd(t, repo, "rev-parse", "gh-pages"),
		gitCmd(t, remote, "rev-parse", "gh-pages"),
	)

	// Publishing the same site again creates no commit.
	res, err = New(vcs, siteBuilder(), nil, integrationOptions(t, repo)).Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.CreatedBranch)
	assert.False(t, res.Committed)
	assert.Equal(t, "1", gitCmd(t, repo, "rev-list", "--count", "gh-pages"))

	// A changed site replaces the old one, stale files included.
	changed := &fakeBuilder{files: map[string]string{"index.html": "<h1>Changed</h1>"}}
	res, err = New(vcs, changed, nil, integrationOptions(t, repo)).Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, "2", gitCmd(t, repo, "rev-list", "--count", "gh-pages"))
	assert.Equal(t, "index.html", gitCmd(t, repo, "ls-tree", "-r", "--name-only", "gh-pages"))
	assert.Equal(t, "2", gitCmd(t, remote, "rev-list", "--count", "gh-pages"))
	assert.Equal(t, "main", gitCmd(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.FileExists(t, filepath.Join(repo, "README.dev"))
}

func TestIntegration_DirtyTreeLeavesRepositoryAlone(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupPublishRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("edited\n"), 0644))

	_, err := New(git.NewManager(), siteBuilder(), nil, integrationOptions(t, repo)).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.ExitDirtyWorkingTree, model.ExitCodeOf(err))

	assert.Equal(t, "main", gitCmd(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Empty(t, gitCmd(t, repo, "branch", "--list", "gh-pages"))
	data, err := os.ReadFile(filepath.Join(repo, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "edited\n", string(data))
}

// TestIntegration_PushFailureRollsBack uses a remote that does not exist,
// so the push fails after the commit. The run must still end on main.
func TestIntegration_PushFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupPublishRepo(t)
	opts := integrationOptions(t, repo)
	opts.Remote = "nowhere"

	_, err := New(git.NewManager(), siteBuilder(), nil, opts).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.ExitGitError, model.ExitCodeOf(err))

	assert.Equal(t, "main", gitCmd(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Empty(t, gitCmd(t, repo, "status", "--porcelain"))
	assert.FileExists(t, filepath.Join(repo, "README.dev"))
	assert.FileExists(t, filepath.Join(repo, ".settings", "prefs"))
	assert.FileExists(t, filepath.Join(repo, "website", "index.md"))
	assert.NoFileExists(t, filepath.Join(repo, "index.html"))
}

// TestIntegration_IgnoredFilesStayLocal verifies that ignored files which
// no stash pattern matches are not published once the wipe has removed
// .gitignore from the working tree.
func TestIntegration_IgnoredFilesStayLocal(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupPublishRepo(t)
	vcs := git.NewManager()

	require.NoError(t, os.WriteFile(filepath.Join(repo, ".gitignore"), []byte("README.dev\n.settings/\n.env\nnode_modules/\n"), 0644))
	gitCmd(t, repo, "commit", "-q", "-am", "ignore local files")
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".env"), []byte("TOKEN=secret"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "node_modules", "x.js"), []byte("module.exports = 1"), 0644))

	for i := 0; i < 2; i++ {
		_, err := New(vcs, siteBuilder(), nil, integrationOptions(t, repo)).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, "css/site.css\nindex.html", gitCmd(t, repo, "ls-tree", "-r", "--name-only", "gh-pages"))
	}

	data, err := os.ReadFile(filepath.Join(repo, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "TOKEN=secret", string(data))
	data, err = os.ReadFile(filepath.Join(repo, "node_modules", "x.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1", string(data))

	assert.Equal(t, "main", gitCmd(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Empty(t, gitCmd(t, repo, "status", "--porcelain"))
}

// TestIntegration_TrackedStashDirectory covers a stash pattern matching a
// directory that main tracks: it is left to git instead of being stashed.
func TestIntegration_TrackedStashDirectory(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupPublishRepo(t)
	vcs := git.NewManager()

	gitCmd(t, repo, "add", "-f", ".settings/prefs")
	gitCmd(t, repo, "commit", "-q", "-m", "track editor settings")

	for i := 0; i < 2; i++ {
		res, err := New(vcs, siteBuilder(), nil, integrationOptions(t, repo)).Run(ctx)
		require.NoError(t, err, "run %d", i+1)
		assert.Equal(t, []string{"README.dev"}, res.StashFiles)

		data, err := os.ReadFile(filepath.Join(repo, ".settings", "prefs"))
		require.NoError(t, err)
		assert.Equal(t, "x=1", string(data))
		assert.FileExists(t, filepath.Join(repo, "README.dev"))

		assert.Equal(t, "main", gitCmd(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
		assert.Empty(t, gitCmd(t, repo, "status", "--porcelain"))
		assert.Equal(t, "css/site.css\nindex.html", gitCmd(t, repo, "ls-tree", "-r", "--name-only", "gh-pages"))
	}
}
