package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/weave/internal/stories/domain"
)

var allWorkItemStatuses = []domain.WorkItemStatus{
	domain.WorkItemPending, domain.WorkItemRefining, domain.WorkItemRefined,
	domain.WorkItemInProgress, domain.WorkItemCompleted, domain.WorkItemError,
}

var allStoryStatuses = []domain.StoryStatus{
	domain.StoryPending, domain.StoryBlocked, domain.StoryReady,
	domain.StoryInProgress, domain.StoryCompleted, domain.StoryError,
}

func TestCanTransitionWorkItem_Matrix(t *testing.T) {
	legal := map[domain.WorkItemStatus][]domain.WorkItemStatus{
		domain.WorkItemPending:    {domain.WorkItemRefining, domain.WorkItemError},
		domain.WorkItemRefining:   {domain.WorkItemRefined, domain.WorkItemError},
		domain.WorkItemRefined:    {domain.WorkItemInProgress, domain.WorkItemError},
		domain.WorkItemInProgress: {domain.WorkItemCompleted, domain.WorkItemError},
		domain.WorkItemCompleted:  {},
		domain.WorkItemError:      {domain.WorkItemPending},
	}

	for _, from := range allWorkItemStatuses {
		for _, to := range allWorkItemStatuses {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}
			require.Equal(t, want, CanTransitionWorkItem(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionStory_Matrix(t *testing.T) {
	legal := map[domain.StoryStatus][]domain.StoryStatus{
		domain.StoryPending:    {domain.StoryReady, domain.StoryBlocked, domain.StoryError},
		domain.StoryBlocked:    {domain.StoryReady, domain.StoryError},
		domain.StoryReady:      {domain.StoryInProgress, domain.StoryBlocked, domain.StoryError},
		domain.StoryInProgress: {domain.StoryCompleted, domain.StoryError, domain.StoryBlocked},
		domain.StoryError:      {domain.StoryPending, domain.StoryReady},
		domain.StoryCompleted:  {},
	}

	for _, from := range allStoryStatuses {
		for _, to := range allStoryStatuses {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}
			require.Equal(t, want, CanTransitionStory(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApplyWorkItem_RejectsIllegal(t *testing.T) {
	item := &domain.WorkItem{Status: domain.WorkItemPending, UpdatedAt: time.Now()}
	before := item.UpdatedAt

	err := ApplyWorkItem(item, domain.WorkItemCompleted)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.Equal(t, domain.WorkItemPending, item.Status, "rejected transition must not mutate")
	require.Equal(t, before, item.UpdatedAt)
}

func TestApplyWorkItem_RetryClearsError(t *testing.T) {
	item := &domain.WorkItem{Status: domain.WorkItemError, ErrorMessage: "planner exploded"}
	require.NoError(t, ApplyWorkItem(item, domain.WorkItemPending))
	require.Equal(t, domain.WorkItemPending, item.Status)
	require.Empty(t, item.ErrorMessage)
}

func TestApplyStory_TimestampSideEffects(t *testing.T) {
	story := &domain.DeveloperStory{Status: domain.StoryReady}

	require.NoError(t, ApplyStory(story, domain.StoryInProgress))
	require.NotNil(t, story.StartedAt)
	require.Nil(t, story.CompletedAt)
	started := *story.StartedAt

	require.NoError(t, ApplyStory(story, domain.StoryCompleted))
	require.NotNil(t, story.CompletedAt)
	require.Equal(t, started, *story.StartedAt, "completion must not move StartedAt")
}

func TestApplyStory_RetryClearsRunState(t *testing.T) {
	now := time.Now().UTC()
	story := &domain.DeveloperStory{
		Status:          domain.StoryError,
		ErrorMessage:    "agent exited 1",
		SessionID:       "sess-42",
		StartedAt:       &now,
		LastHeartbeatAt: &now,
	}

	require.NoError(t, ApplyStory(story, domain.StoryReady))
	require.Equal(t, domain.StoryReady, story.Status)
	require.Nil(t, story.StartedAt)
	require.Nil(t, story.CompletedAt)
	require.Nil(t, story.LastHeartbeatAt)
	require.Empty(t, story.ErrorMessage)
	require.Equal(t, "sess-42", story.SessionID, "retry keeps the session for resumption")
}

func TestApplyStory_CompletedIsTerminal(t *testing.T) {
	for _, to := range allStoryStatuses {
		if to == domain.StoryCompleted {
			continue
		}
		story := &domain.DeveloperStory{Status: domain.StoryCompleted}
		require.ErrorIs(t, ApplyStory(story, to), domain.ErrIllegalTransition)
	}
}

// Property: a story driven through any sequence of legal transitions
// keeps its timestamps consistent with its status.
func TestApplyStory_RandomWalkInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		story := &domain.DeveloperStory{Status: domain.StoryPending}

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			next := ValidStoryTransitions(story.Status)
			if len(next) == 0 {
				break
			}
			to := rapid.SampledFrom(next).Draw(t, "to")
			require.NoError(t, ApplyStory(story, to))

			switch story.Status {
			case domain.StoryInProgress:
				require.NotNil(t, story.StartedAt)
			case domain.StoryCompleted:
				require.NotNil(t, story.CompletedAt)
			case domain.StoryPending, domain.StoryReady:
				require.Nil(t, story.CompletedAt)
			}
		}
	})
}
