package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weave/internal/git"
	"github.com/zjrosen/weave/internal/stories/domain"
)

// gitMock implements git.Executor with recorded calls.
type gitMock struct {
	repo     bool
	branches map[string]bool
	trees    map[string]bool

	createBranchErr   error
	createWorktreeErr error
	removeErr         error

	removed []string
}

var _ git.Executor = (*gitMock)(nil)

func newGitMock() *gitMock {
	return &gitMock{
		repo:     true,
		branches: map[string]bool{"main": true},
		trees:    map[string]bool{},
	}
}

func (m *gitMock) IsGitRepo() bool                 { return m.repo }
func (m *gitMock) CurrentBranch() (string, error)  { return "main", nil }
func (m *gitMock) BranchExists(name string) bool   { return m.branches[name] }
func (m *gitMock) PruneWorktrees() error           { return nil }
func (m *gitMock) ValidateBranchName(string) error { return nil }

func (m *gitMock) CreateBranch(name, _ string) error {
	if m.createBranchErr != nil {
		return m.createBranchErr
	}
	m.branches[name] = true
	return nil
}

func (m *gitMock) WorktreeExists(path string) (bool, error) {
	return m.trees[path], nil
}

func (m *gitMock) CreateWorktreeWithContext(_ context.Context, path, _ string) error {
	if m.createWorktreeErr != nil {
		return m.createWorktreeErr
	}
	m.trees[path] = true
	return nil
}

func (m *gitMock) RemoveWorktree(path string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.trees, path)
	m.removed = append(m.removed, path)
	return nil
}

type recorded struct {
	event   domain.EventType
	details string
}

func testStory() *domain.DeveloperStory {
	return &domain.DeveloperStory{ID: 14, WorkItemID: 3}
}

func TestAcquire_CreatesBranchAndWorktree(t *testing.T) {
	mock := newGitMock()
	base := t.TempDir()
	iso := NewIsolator(mock, base)

	var events []recorded
	record := func(event domain.EventType, details string, _ map[string]string) {
		events = append(events, recorded{event, details})
	}

	ws, err := iso.Acquire(context.Background(), testStory(), "main", record)
	require.NoError(t, err)
	require.Equal(t, "story/3/14", ws.Branch)
	require.Equal(t, filepath.Join(base, "ds-14"), ws.Path)
	require.True(t, mock.branches["story/3/14"])
	require.True(t, mock.trees[ws.Path])

	require.Len(t, events, 2)
	require.Equal(t, domain.EventBranchCreated, events[0].event)
	require.Equal(t, domain.EventWorktreeCreated, events[1].event)
}

func TestAcquire_ExistingBranchEmitsNoBranchEvent(t *testing.T) {
	mock := newGitMock()
	mock.branches["story/3/14"] = true
	iso := NewIsolator(mock, t.TempDir())

	var events []recorded
	record := func(event domain.EventType, details string, _ map[string]string) {
		events = append(events, recorded{event, details})
	}

	_, err := iso.Acquire(context.Background(), testStory(), "main", record)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventWorktreeCreated, events[0].event)
}

func TestAcquire_NotARepo(t *testing.T) {
	mock := newGitMock()
	mock.repo = false
	iso := NewIsolator(mock, t.TempDir())

	_, err := iso.Acquire(context.Background(), testStory(), "main",
		func(domain.EventType, string, map[string]string) {})
	require.ErrorIs(t, err, domain.ErrRepo)
}

func TestAcquire_WorktreeFailurePropagates(t *testing.T) {
	mock := newGitMock()
	mock.createWorktreeErr = errors.New("disk full")
	iso := NewIsolator(mock, t.TempDir())

	_, err := iso.Acquire(context.Background(), testStory(), "main",
		func(domain.EventType, string, map[string]string) {})
	require.ErrorContains(t, err, "disk full")
}

func TestRelease_RemovesWorktreeOnce(t *testing.T) {
	mock := newGitMock()
	iso := NewIsolator(mock, t.TempDir())

	var events []recorded
	record := func(event domain.EventType, details string, _ map[string]string) {
		events = append(events, recorded{event, details})
	}

	ws, err := iso.Acquire(context.Background(), testStory(), "main", record)
	require.NoError(t, err)

	ws.Release()
	ws.Release()
	require.Len(t, mock.removed, 1, "second release must be a no-op")

	last := events[len(events)-1]
	require.Equal(t, domain.EventWorktreeRemoved, last.event)
}

func TestRelease_RemovalErrorIsRecordedNotReturned(t *testing.T) {
	mock := newGitMock()
	iso := NewIsolator(mock, t.TempDir())

	var events []recorded
	record := func(event domain.EventType, details string, _ map[string]string) {
		events = append(events, recorded{event, details})
	}

	ws, err := iso.Acquire(context.Background(), testStory(), "main", record)
	require.NoError(t, err)

	mock.removeErr = errors.New("locked")
	ws.Release()

	last := events[len(events)-1]
	require.Equal(t, domain.EventInfo, last.event)
	require.Contains(t, last.details, "locked")
}
