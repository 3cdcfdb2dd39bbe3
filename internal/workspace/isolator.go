// Package workspace provides scoped acquisition of a per-story
// workspace: a feature branch plus a dedicated worktree, with
// guaranteed release on all exit paths.
package workspace

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/zjrosen/weave/internal/git"
	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/stories/domain"
)

// Recorder receives audit events emitted during workspace lifecycle.
// The orchestrator appends them to the story's execution log.
type Recorder func(event domain.EventType, details string, meta map[string]string)

// Isolator acquires and releases per-story workspaces over a repository.
type Isolator struct {
	git      git.Executor
	basePath string
}

// NewIsolator creates an Isolator. basePath is the parent directory for
// per-story worktrees; relative paths are resolved against the process
// working directory.
func NewIsolator(gitExec git.Executor, basePath string) *Isolator {
	if abs, err := filepath.Abs(basePath); err == nil {
		basePath = abs
	}
	return &Isolator{git: gitExec, basePath: basePath}
}

// Workspace is an acquired per-story working directory. Release must be
// called on every exit path; it is safe to call more than once.
type Workspace struct {
	Branch   string
	Path     string
	isolator *Isolator
	record   Recorder
	released bool
}

// Acquire ensures the story's feature branch exists (created from
// baseBranch when missing) and its worktree is checked out at the
// deterministic per-story path. Emits branch_created and
// worktree_created events through the recorder.
func (i *Isolator) Acquire(ctx context.Context, story *domain.DeveloperStory, baseBranch string, record Recorder) (*Workspace, error) {
	if !i.git.IsGitRepo() {
		return nil, fmt.Errorf("%w: not a git repository", domain.ErrRepo)
	}

	branch := git.BranchNameFor(story.WorkItemID, story.ID)
	if err := i.git.ValidateBranchName(branch); err != nil {
		return nil, err
	}

	created := !i.git.BranchExists(branch)
	if err := i.git.CreateBranch(branch, baseBranch); err != nil {
		return nil, err
	}
	if created {
		record(domain.EventBranchCreated, "created branch "+branch,
			map[string]string{"branch": branch, "base": baseBranch})
	}

	path := git.WorktreePathFor(story.ID, i.basePath)
	exists, err := i.git.WorktreeExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := i.git.CreateWorktreeWithContext(ctx, path, branch); err != nil {
			return nil, err
		}
		record(domain.EventWorktreeCreated, "created worktree at "+path,
			map[string]string{"path": path, "branch": branch})
	}

	log.Debug(log.CatGit, "workspace acquired", "story", story.ID, "path", path)
	return &Workspace{
		Branch:   branch,
		Path:     path,
		isolator: i,
		record:   record,
	}, nil
}

// Release removes the worktree and emits worktree_removed. Removal is
// forced, so uncommitted changes do not block it; a missing worktree is
// a no-op. Errors are recorded rather than returned because Release
// runs on failure paths where the original error must win.
func (w *Workspace) Release() {
	if w.released {
		return
	}
	w.released = true

	if err := w.isolator.git.RemoveWorktree(w.Path); err != nil {
		log.ErrorErr(log.CatGit, "worktree removal failed", err, "path", w.Path)
		w.record(domain.EventInfo, "worktree removal failed: "+err.Error(), nil)
		return
	}
	w.record(domain.EventWorktreeRemoved, "removed worktree at "+w.Path,
		map[string]string{"path": w.Path})
}
