package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/stories/domain"
)

// Git-specific errors for branch and worktree operations. All of them
// match domain.ErrRepo.
var (
	// ErrBranchAlreadyCheckedOut indicates the branch is checked out in another worktree.
	ErrBranchAlreadyCheckedOut = errors.New("branch already checked out in another worktree")

	// ErrPathAlreadyExists indicates the worktree path already exists.
	ErrPathAlreadyExists = errors.New("worktree path already exists")

	// ErrWorktreeLocked indicates the worktree is locked.
	ErrWorktreeLocked = errors.New("worktree is locked")

	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrInvalidBranchName indicates the branch name fails check-ref-format.
	ErrInvalidBranchName = errors.New("invalid branch name")

	// ErrWorktreeTimeout indicates worktree creation exceeded its deadline.
	ErrWorktreeTimeout = errors.New("worktree operation timed out")
)

// Compile-time check that RealExecutor implements Executor.
var _ Executor = (*RealExecutor)(nil)

// RealExecutor implements Executor by executing actual git commands.
type RealExecutor struct {
	workDir string
}

// NewRealExecutor creates a new RealExecutor rooted at workDir.
func NewRealExecutor(workDir string) *RealExecutor {
	return &RealExecutor{workDir: workDir}
}

// runGit executes a git command and returns an error if it fails.
func (e *RealExecutor) runGit(args ...string) error {
	_, err := e.runGitOutput(args...)
	return err
}

// runGitOutput executes a git command and returns stdout and any error.
func (e *RealExecutor) runGitOutput(args ...string) (string, error) {
	return e.runGitOutputContext(context.Background(), args...)
}

func (e *RealExecutor) runGitOutputContext(ctx context.Context, args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, "git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: git %s: %w", ErrWorktreeTimeout, strings.Join(args, " "), domain.ErrRepo)
		}
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", parseGitError(stderrStr, err)
		}
		return "", fmt.Errorf("git %s: %w: %w", strings.Join(args, " "), err, domain.ErrRepo)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// parseGitError converts git stderr messages to specific error types.
func parseGitError(stderr string, originalErr error) error {
	stderrLower := strings.ToLower(stderr)

	// Branch already checked out: fatal: '<branch>' is already checked out
	if strings.Contains(stderrLower, "is already checked out") ||
		strings.Contains(stderrLower, "already checked out at") {
		return fmt.Errorf("%w: %s: %w", ErrBranchAlreadyCheckedOut, stderr, domain.ErrRepo)
	}

	// Path already exists: fatal: '<path>' already exists
	if strings.Contains(stderrLower, "already exists") {
		return fmt.Errorf("%w: %s: %w", ErrPathAlreadyExists, stderr, domain.ErrRepo)
	}

	// Locked worktree: fatal: '<path>' is locked
	if strings.Contains(stderrLower, "is locked") {
		return fmt.Errorf("%w: %s: %w", ErrWorktreeLocked, stderr, domain.ErrRepo)
	}

	// Not a git repository
	if strings.Contains(stderrLower, "not a git repository") {
		return fmt.Errorf("%w: %s: %w", ErrNotGitRepo, stderr, domain.ErrRepo)
	}

	return fmt.Errorf("git error: %s: %w: %w", stderr, originalErr, domain.ErrRepo)
}

// IsGitRepo checks if the working directory is inside a git repository.
func (e *RealExecutor) IsGitRepo() bool {
	err := e.runGit("rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the name of the current branch.
func (e *RealExecutor) CurrentBranch() (string, error) {
	// git branch --show-current (git 2.22+)
	output, err := e.runGitOutput("branch", "--show-current")
	if err == nil && output != "" {
		return output, nil
	}

	// Fallback: parse symbolic-ref
	output, err = e.runGitOutput("symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return output, nil
}

// BranchExists checks whether a local branch with the name exists.
func (e *RealExecutor) BranchExists(name string) bool {
	err := e.runGit("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// CreateBranch creates branch name starting at from. Succeeds without
// side effects when the branch already exists.
func (e *RealExecutor) CreateBranch(name, from string) error {
	if name == "" {
		return fmt.Errorf("branch name is required: %w", domain.ErrRepo)
	}
	if e.BranchExists(name) {
		log.Debug(log.CatGit, "branch exists", "name", name)
		return nil
	}

	args := []string{"branch", name}
	if from != "" {
		args = append(args, from)
	}
	if err := e.runGit(args...); err != nil {
		return err
	}
	log.Debug(log.CatGit, "branch created", "name", name, "from", from)
	return nil
}

// WorktreeExists checks whether a worktree is registered at path.
func (e *RealExecutor) WorktreeExists(path string) (bool, error) {
	output, err := e.runGitOutput("worktree", "list", "--porcelain")
	if err != nil {
		return false, err
	}

	abs := e.absPath(path)
	for _, line := range strings.Split(output, "\n") {
		if wt, ok := strings.CutPrefix(line, "worktree "); ok && wt == abs {
			return true, nil
		}
	}
	return false, nil
}

// CreateWorktreeWithContext creates a worktree at path checked out to branch.
func (e *RealExecutor) CreateWorktreeWithContext(ctx context.Context, path, branch string) error {
	if path == "" || branch == "" {
		return fmt.Errorf("worktree path and branch are required: %w", domain.ErrRepo)
	}

	_, err := e.runGitOutputContext(ctx, "worktree", "add", path, branch)
	if err != nil {
		return err
	}
	log.Debug(log.CatGit, "worktree created", "path", path, "branch", branch)
	return nil
}

// RemoveWorktree removes the worktree at path, discarding uncommitted
// changes. Removing a worktree that does not exist is a no-op; a stale
// lock is logged but not fatal.
func (e *RealExecutor) RemoveWorktree(path string) error {
	exists, err := e.WorktreeExists(path)
	if err != nil {
		return err
	}
	if !exists {
		// Clean up a leftover directory that git no longer tracks.
		if _, statErr := os.Stat(path); statErr == nil {
			_ = os.RemoveAll(path)
		}
		return nil
	}

	if err := e.runGit("worktree", "remove", "--force", path); err != nil {
		if errors.Is(err, ErrWorktreeLocked) {
			log.Warn(log.CatGit, "worktree locked, pruning", "path", path)
			_ = os.RemoveAll(path)
			return e.PruneWorktrees()
		}
		return err
	}
	log.Debug(log.CatGit, "worktree removed", "path", path)
	return nil
}

// PruneWorktrees removes stale worktree administrative entries.
func (e *RealExecutor) PruneWorktrees() error {
	return e.runGit("worktree", "prune")
}

// ValidateBranchName validates a branch name using git check-ref-format.
func (e *RealExecutor) ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name: %w", ErrInvalidBranchName, domain.ErrRepo)
	}
	if err := e.runGit("check-ref-format", "--branch", name); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidBranchName, name, domain.ErrRepo)
	}
	return nil
}

// absPath resolves path the way git resolves command arguments:
// relative paths are relative to the executor's working directory.
func (e *RealExecutor) absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if e.workDir != "" {
		return filepath.Join(e.workDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
