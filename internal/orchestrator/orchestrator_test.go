package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weave/internal/config"
	"github.com/zjrosen/weave/internal/executor"
	"github.com/zjrosen/weave/internal/git"
	"github.com/zjrosen/weave/internal/planner"
	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/testutil"
)

// plannerMock implements planner.Planner with an injected function.
type plannerMock struct {
	RefineFunc func(ctx context.Context, item *domain.WorkItem) (*planner.Result, error)
}

func (m *plannerMock) Refine(ctx context.Context, item *domain.WorkItem) (*planner.Result, error) {
	return m.RefineFunc(ctx, item)
}

// gitMock implements git.Executor in memory.
type gitMock struct {
	branches map[string]bool
	trees    map[string]bool
	bases    map[string]string
	removed  []string
}

var _ git.Executor = (*gitMock)(nil)

func newGitMock() *gitMock {
	return &gitMock{
		branches: map[string]bool{"main": true},
		trees:    map[string]bool{},
		bases:    map[string]string{},
	}
}

func (m *gitMock) IsGitRepo() bool                { return true }
func (m *gitMock) CurrentBranch() (string, error) { return "main", nil }
func (m *gitMock) BranchExists(name string) bool  { return m.branches[name] }
func (m *gitMock) CreateBranch(name, base string) error {
	m.branches[name] = true
	m.bases[name] = base
	return nil
}
func (m *gitMock) WorktreeExists(path string) (bool, error) { return m.trees[path], nil }
func (m *gitMock) CreateWorktreeWithContext(_ context.Context, path, _ string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	m.trees[path] = true
	return nil
}
func (m *gitMock) RemoveWorktree(path string) error {
	delete(m.trees, path)
	m.removed = append(m.removed, path)
	return nil
}
func (m *gitMock) PruneWorktrees() error           { return nil }
func (m *gitMock) ValidateBranchName(string) error { return nil }

// twoStoryPlan is a plan with tests depending on implementation.
func twoStoryPlan() *planner.Result {
	return &planner.Result{
		Analysis: "implement then test",
		Stories: []planner.PlannedStory{
			{Title: "Implement feature", Description: "d", Instructions: "implement", StoryType: 0},
			{Title: "Unit tests", Description: "d", Instructions: "test", StoryType: 1},
		},
		Dependencies: []planner.PlannedDependency{
			{DependentStoryIndex: 1, RequiredStoryIndex: 0, Description: "tests need code"},
		},
	}
}

type fixture struct {
	store domain.Store
	orch  *Orchestrator
	plan  *plannerMock
	exec  *executor.Mock
	git   *gitMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := testutil.NewTestStore(t)
	plan := &plannerMock{RefineFunc: func(context.Context, *domain.WorkItem) (*planner.Result, error) {
		return twoStoryPlan(), nil
	}}
	exec := executor.NewMock()
	gm := newGitMock()

	cfg := config.Defaults()
	cfg.Repo.WorktreeBasePath = t.TempDir()

	return &fixture{
		store: store,
		orch:  New(store, plan, exec, gm, cfg, nil),
		plan:  plan,
		exec:  exec,
		git:   gm,
	}
}

func (f *fixture) createItem(t *testing.T) *domain.WorkItem {
	t.Helper()
	item, err := f.orch.CreateWorkItem(context.Background(),
		domain.TypeUserStory, "Add search", "Add a search box", "results appear", 3)
	require.NoError(t, err)
	return item
}

func (f *fixture) refineItem(t *testing.T) (*domain.WorkItem, []*domain.DeveloperStory) {
	t.Helper()
	ctx := context.Background()
	item := f.createItem(t)
	_, err := f.orch.Refine(ctx, item.ID)
	require.NoError(t, err)

	item, err = f.store.WorkItem(ctx, item.ID)
	require.NoError(t, err)
	stories, err := f.store.StoriesByWorkItem(ctx, item.ID)
	require.NoError(t, err)
	return item, stories
}

func TestCreateWorkItem_Persists(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t)

	got, err := f.store.WorkItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WorkItemPending, got.Status)
	require.Equal(t, "Add search", got.Title)
}

func TestRefine_HappyPath(t *testing.T) {
	f := newFixture(t)
	item, stories := f.refineItem(t)

	require.Equal(t, domain.WorkItemRefined, item.Status)
	require.Len(t, stories, 2)

	// Readiness ran inside the refine transaction.
	byTitle := map[string]*domain.DeveloperStory{}
	for _, s := range stories {
		byTitle[s.Title] = s
	}
	require.Equal(t, domain.StoryReady, byTitle["Implement feature"].Status)
	require.Equal(t, domain.StoryBlocked, byTitle["Unit tests"].Status)

	deps, err := f.store.DependenciesOf(context.Background(), byTitle["Unit tests"].ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, byTitle["Implement feature"].ID, deps[0].RequiredStoryID)

	// Stories and edges carry real creation timestamps.
	for _, s := range stories {
		require.WithinDuration(t, time.Now().UTC(), s.CreatedAt, time.Minute)
	}
	require.WithinDuration(t, time.Now().UTC(), deps[0].CreatedAt, time.Minute)
}

func TestRefine_PlannerFailureErrorsItem(t *testing.T) {
	f := newFixture(t)
	f.plan.RefineFunc = func(context.Context, *domain.WorkItem) (*planner.Result, error) {
		return nil, domain.ErrExternal
	}
	item := f.createItem(t)

	_, err := f.orch.Refine(context.Background(), item.ID)
	require.ErrorIs(t, err, domain.ErrExternal)

	got, err := f.store.WorkItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WorkItemError, got.Status)
	require.NotEmpty(t, got.ErrorMessage)
}

func TestRefine_CyclicPlanRollsBack(t *testing.T) {
	f := newFixture(t)
	f.plan.RefineFunc = func(context.Context, *domain.WorkItem) (*planner.Result, error) {
		plan := twoStoryPlan()
		plan.Dependencies = append(plan.Dependencies,
			planner.PlannedDependency{DependentStoryIndex: 0, RequiredStoryIndex: 1})
		return plan, nil
	}
	item := f.createItem(t)
	ctx := context.Background()

	_, err := f.orch.Refine(ctx, item.ID)
	require.ErrorIs(t, err, domain.ErrCycle)

	got, err := f.store.WorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WorkItemError, got.Status)

	stories, err := f.store.StoriesByWorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Empty(t, stories, "a rejected plan must leave no partial stories")
}

func TestRefine_NonPendingRejected(t *testing.T) {
	f := newFixture(t)
	item, _ := f.refineItem(t)

	_, err := f.orch.Refine(context.Background(), item.ID)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestRefine_RetryAfterError(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.plan.RefineFunc = func(context.Context, *domain.WorkItem) (*planner.Result, error) {
		calls++
		if calls == 1 {
			return nil, domain.ErrTimeout
		}
		return twoStoryPlan(), nil
	}
	item := f.createItem(t)
	ctx := context.Background()

	_, err := f.orch.Refine(ctx, item.ID)
	require.ErrorIs(t, err, domain.ErrTimeout)

	_, err = f.orch.RetryWorkItem(ctx, item.ID)
	require.NoError(t, err)

	_, err = f.orch.Refine(ctx, item.ID)
	require.NoError(t, err)

	got, err := f.store.WorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WorkItemRefined, got.Status)
	require.Empty(t, got.ErrorMessage)
}

func TestSelectNext_PicksReadyStory(t *testing.T) {
	f := newFixture(t)
	_, stories := f.refineItem(t)

	next, err := f.orch.SelectNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "Implement feature", next.Title)
	_ = stories
}

func TestImplement_HappyPath(t *testing.T) {
	f := newFixture(t)
	item, _ := f.refineItem(t)
	ctx := context.Background()

	f.exec.StartFunc = func(_ context.Context, instruction, workDir string, _ executor.Options) (*executor.Result, error) {
		require.Equal(t, "implement", instruction)
		require.DirExists(t, workDir)
		return &executor.Result{Stdout: `{"session_id": "sess-1"}`, SessionID: "sess-1"}, nil
	}

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)

	result, err := f.orch.Implement(ctx, next.ID)
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.Equal(t, git.BranchNameFor(item.ID, next.ID), result.Branch)

	story, err := f.store.Story(ctx, next.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StoryCompleted, story.Status)
	require.Equal(t, "sess-1", story.SessionID)
	require.NotNil(t, story.CompletedAt)

	// Completion promoted the dependent story.
	stories, err := f.store.StoriesByWorkItem(ctx, item.ID)
	require.NoError(t, err)
	for _, s := range stories {
		if s.ID != next.ID {
			require.Equal(t, domain.StoryReady, s.Status)
		}
	}

	// Workspace was acquired and released.
	require.Len(t, f.git.removed, 1)

	// Audit trail covers the full lifecycle.
	logs, err := f.store.LogsByStory(ctx, next.ID)
	require.NoError(t, err)
	var events []domain.EventType
	for _, l := range logs {
		events = append(events, l.EventType)
	}
	require.Contains(t, events, domain.EventStarted)
	require.Contains(t, events, domain.EventBranchCreated)
	require.Contains(t, events, domain.EventWorktreeCreated)
	require.Contains(t, events, domain.EventCompleted)
	require.Contains(t, events, domain.EventWorktreeRemoved)

	// Work item moved to in_progress, not completed: a story remains.
	got, err := f.store.WorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WorkItemInProgress, got.Status)
}

func TestImplement_LastStoryCompletesWorkItem(t *testing.T) {
	f := newFixture(t)
	item, _ := f.refineItem(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		next, err := f.orch.SelectNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, next, "round %d", i)
		_, err = f.orch.Implement(ctx, next.ID)
		require.NoError(t, err)
	}

	got, err := f.store.WorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WorkItemCompleted, got.Status)

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestImplement_FailureSettlesError(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	ctx := context.Background()

	f.exec.StartFunc = func(context.Context, string, string, executor.Options) (*executor.Result, error) {
		return &executor.Result{ExitCode: 1, Stderr: "compile error"}, nil
	}

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)

	_, err = f.orch.Implement(ctx, next.ID)
	require.ErrorIs(t, err, domain.ErrExecutor)

	story, err := f.store.Story(ctx, next.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StoryError, story.Status)
	require.Contains(t, story.ErrorMessage, "compile error")

	// Worktree released on the failure path too.
	require.Len(t, f.git.removed, 1)

	logs, err := f.store.LogsByStory(ctx, next.ID)
	require.NoError(t, err)
	var sawFailed bool
	for _, l := range logs {
		if l.EventType == domain.EventFailed {
			sawFailed = true
		}
	}
	require.True(t, sawFailed)
}

func TestImplement_RetryResumesSession(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	ctx := context.Background()

	f.exec.StartFunc = func(context.Context, string, string, executor.Options) (*executor.Result, error) {
		return &executor.Result{ExitCode: 1, SessionID: "sess-9", Stderr: "flaky"}, nil
	}
	f.exec.ContinueFunc = func(_ context.Context, sessionID string, _, _ string, _ executor.Options) (*executor.Result, error) {
		require.Equal(t, "sess-9", sessionID)
		return &executor.Result{SessionID: "sess-9"}, nil
	}

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)

	_, err = f.orch.Implement(ctx, next.ID)
	require.Error(t, err)

	// The failed run still recorded the session token.
	story, err := f.store.Story(ctx, next.ID)
	require.NoError(t, err)
	require.Equal(t, "sess-9", story.SessionID)

	_, err = f.orch.RetryStory(ctx, next.ID)
	require.NoError(t, err)

	result, err := f.orch.Implement(ctx, next.ID)
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.Equal(t, 1, f.exec.ContinueCount())
}

func TestImplement_SingleActiveUserStory(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	ctx := context.Background()

	// Second user story, also refined.
	second, err := f.orch.CreateWorkItem(ctx, domain.TypeUserStory, "Other", "other work", "", 5)
	require.NoError(t, err)
	_, err = f.orch.Refine(ctx, second.ID)
	require.NoError(t, err)

	// Start the first item.
	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)
	f.exec.StartFunc = func(context.Context, string, string, executor.Options) (*executor.Result, error) {
		return &executor.Result{ExitCode: 1, Stderr: "fail to keep item in progress"}, nil
	}
	_, err = f.orch.Implement(ctx, next.ID)
	require.Error(t, err)

	// Claiming a story of the second user story is rejected while the
	// first is in progress.
	stories, err := f.store.StoriesByWorkItem(ctx, second.ID)
	require.NoError(t, err)
	var ready *domain.DeveloperStory
	for _, s := range stories {
		if s.Status == domain.StoryReady {
			ready = s
		}
	}
	require.NotNil(t, ready)

	_, err = f.orch.Implement(ctx, ready.ID)
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestImplementOn_BaseBranchOverride(t *testing.T) {
	f := newFixture(t)
	item, _ := f.refineItem(t)
	ctx := context.Background()

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)

	result, err := f.orch.ImplementOn(ctx, next.ID, "develop")
	require.NoError(t, err)

	branch := git.BranchNameFor(item.ID, next.ID)
	require.Equal(t, branch, result.Branch)
	require.Equal(t, "develop", f.git.bases[branch])
}

func TestImplement_NonReadyStoryRejected(t *testing.T) {
	f := newFixture(t)
	_, stories := f.refineItem(t)

	var blocked *domain.DeveloperStory
	for _, s := range stories {
		if s.Status == domain.StoryBlocked {
			blocked = s
		}
	}
	require.NotNil(t, blocked)

	_, err := f.orch.Implement(context.Background(), blocked.ID)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.Zero(t, f.exec.AvailableCount(), "unrunnable story must not probe the agent")
}

func TestImplement_CompletedStoryNeverProbes(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	ctx := context.Background()

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)
	_, err = f.orch.Implement(ctx, next.ID)
	require.NoError(t, err)

	probes := f.exec.AvailableCount()
	_, err = f.orch.Implement(ctx, next.ID)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.Equal(t, probes, f.exec.AvailableCount())
	require.Zero(t, f.exec.StartCount()+f.exec.ContinueCount()-1,
		"terminal story must not reach the agent")
}

func TestImplement_TimeoutSettlesError(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	ctx := context.Background()

	f.exec.StartFunc = func(context.Context, string, string, executor.Options) (*executor.Result, error) {
		return nil, fmt.Errorf("%w after 600000ms", domain.ErrTimeout)
	}

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)

	_, err = f.orch.Implement(ctx, next.ID)
	require.ErrorIs(t, err, domain.ErrTimeout)

	story, err := f.store.Story(ctx, next.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StoryError, story.Status)
	require.Contains(t, story.ErrorMessage, "timed out")

	// Failure is settled before the worktree goes away.
	logs, err := f.store.LogsByStory(ctx, next.ID)
	require.NoError(t, err)
	failedIdx, removedIdx := -1, -1
	for i, l := range logs {
		switch l.EventType {
		case domain.EventFailed:
			failedIdx = i
		case domain.EventWorktreeRemoved:
			removedIdx = i
		}
	}
	require.GreaterOrEqual(t, failedIdx, 0)
	require.Greater(t, removedIdx, failedIdx)
	require.Len(t, f.git.removed, 1)
}

func TestImplement_ExecutorUnavailable(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	f.exec.Available = false

	next, err := f.orch.SelectNext(context.Background())
	require.NoError(t, err)

	_, err = f.orch.Implement(context.Background(), next.ID)
	require.ErrorIs(t, err, domain.ErrExecutor)

	// Nothing was claimed.
	story, err := f.store.Story(context.Background(), next.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StoryReady, story.Status)
}

func TestImplement_ExecutorTransportError(t *testing.T) {
	f := newFixture(t)
	_, _ = f.refineItem(t)
	ctx := context.Background()

	boom := errors.New("spawn failed")
	f.exec.StartFunc = func(context.Context, string, string, executor.Options) (*executor.Result, error) {
		return nil, boom
	}

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)

	_, err = f.orch.Implement(ctx, next.ID)
	require.ErrorIs(t, err, boom)

	story, err := f.store.Story(ctx, next.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StoryError, story.Status)
	require.Len(t, f.git.removed, 1, "worktree released when the agent never started")
}
