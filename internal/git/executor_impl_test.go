package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// initRepo creates a git repository with one commit and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("test\n"), 0644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestBranchNameFor(t *testing.T) {
	require.Equal(t, "story/3/14", BranchNameFor(3, 14))
}

func TestWorktreePathFor(t *testing.T) {
	require.Equal(t, filepath.Join("/tmp/wt", "ds-7"), WorktreePathFor(7, "/tmp/wt"))
}

func TestIsGitRepo(t *testing.T) {
	repo := initRepo(t)
	require.True(t, NewRealExecutor(repo).IsGitRepo())
	require.False(t, NewRealExecutor(t.TempDir()).IsGitRepo())
}

func TestCurrentBranch(t *testing.T) {
	repo := initRepo(t)

	branch, err := NewRealExecutor(repo).CurrentBranch()
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestCreateBranch_Idempotent(t *testing.T) {
	repo := initRepo(t)
	e := NewRealExecutor(repo)

	require.False(t, e.BranchExists("story/1/1"))
	require.NoError(t, e.CreateBranch("story/1/1", "main"))
	require.True(t, e.BranchExists("story/1/1"))

	// Second creation is a no-op.
	require.NoError(t, e.CreateBranch("story/1/1", "main"))
}

func TestCreateBranch_UnknownBase(t *testing.T) {
	repo := initRepo(t)
	e := NewRealExecutor(repo)

	err := e.CreateBranch("story/1/2", "no-such-branch")
	require.ErrorIs(t, err, domain.ErrRepo)
}

func TestWorktreeLifecycle(t *testing.T) {
	repo := initRepo(t)
	e := NewRealExecutor(repo)
	ctx := context.Background()

	require.NoError(t, e.CreateBranch("story/1/1", "main"))

	path := filepath.Join(t.TempDir(), "ds-1")
	exists, err := e.WorktreeExists(path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, e.CreateWorktreeWithContext(ctx, path, "story/1/1"))

	exists, err = e.WorktreeExists(path)
	require.NoError(t, err)
	require.True(t, exists)
	require.FileExists(t, filepath.Join(path, "README.md"))

	// Uncommitted changes do not block forced removal.
	require.NoError(t, os.WriteFile(filepath.Join(path, "dirty.txt"), []byte("wip"), 0644))
	require.NoError(t, e.RemoveWorktree(path))

	exists, err = e.WorktreeExists(path)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoDirExists(t, path)
}

func TestRemoveWorktree_MissingIsNoop(t *testing.T) {
	repo := initRepo(t)
	e := NewRealExecutor(repo)

	require.NoError(t, e.RemoveWorktree(filepath.Join(t.TempDir(), "never-created")))
}

func TestCreateWorktree_BranchAlreadyCheckedOut(t *testing.T) {
	repo := initRepo(t)
	e := NewRealExecutor(repo)
	ctx := context.Background()

	require.NoError(t, e.CreateBranch("story/1/1", "main"))
	first := filepath.Join(t.TempDir(), "ds-1")
	require.NoError(t, e.CreateWorktreeWithContext(ctx, first, "story/1/1"))

	second := filepath.Join(t.TempDir(), "ds-1-dup")
	err := e.CreateWorktreeWithContext(ctx, second, "story/1/1")
	require.ErrorIs(t, err, ErrBranchAlreadyCheckedOut)
	require.ErrorIs(t, err, domain.ErrRepo)
}

func TestValidateBranchName(t *testing.T) {
	repo := initRepo(t)
	e := NewRealExecutor(repo)

	require.NoError(t, e.ValidateBranchName("story/1/1"))

	for _, bad := range []string{"", "has space", "double..dot", "trailing.lock"} {
		err := e.ValidateBranchName(bad)
		require.ErrorIs(t, err, ErrInvalidBranchName, "name %q", bad)
		require.ErrorIs(t, err, domain.ErrRepo)
	}
}
