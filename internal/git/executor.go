// Package git provides the version-control operations the workspace
// isolator needs: branch creation and per-story worktree lifecycle.
package git

import (
	"context"
	"fmt"
	"path/filepath"
)

// Executor defines the interface for git branch and worktree operations.
// This abstraction allows for easy testing with mock implementations.
type Executor interface {
	// IsGitRepo reports whether the executor's directory is inside a
	// git repository. Probe: never returns an error.
	IsGitRepo() bool

	// CurrentBranch returns the name of the checked-out branch.
	CurrentBranch() (string, error)

	// BranchExists reports whether a local branch with the name exists.
	BranchExists(name string) bool

	// CreateBranch creates branch name starting at from. Idempotent:
	// succeeds without side effects when the branch already exists.
	// If from is empty, the branch starts at HEAD.
	CreateBranch(name, from string) error

	// WorktreeExists reports whether a worktree is registered at path.
	WorktreeExists(path string) (bool, error)

	// CreateWorktreeWithContext creates a worktree at path checked out
	// to branch. Returns ErrWorktreeTimeout if the context deadline is
	// exceeded.
	CreateWorktreeWithContext(ctx context.Context, path, branch string) error

	// RemoveWorktree removes the worktree at path, discarding
	// uncommitted changes. Removing a worktree that does not exist is a
	// no-op.
	RemoveWorktree(path string) error

	// PruneWorktrees removes stale worktree administrative entries.
	PruneWorktrees() error

	// ValidateBranchName validates a branch name using
	// git check-ref-format --branch.
	ValidateBranchName(name string) error
}

// BranchNameFor returns the feature branch name for a story:
// story/<workItemID>/<storyID>.
func BranchNameFor(workItemID, storyID int64) string {
	return fmt.Sprintf("story/%d/%d", workItemID, storyID)
}

// WorktreePathFor returns the deterministic worktree path for a story:
// basePath/ds-<storyID>.
func WorktreePathFor(storyID int64, basePath string) string {
	return filepath.Join(basePath, fmt.Sprintf("ds-%d", storyID))
}
