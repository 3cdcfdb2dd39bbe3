package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/testutil"
)

func TestRecover_ResetsStaleInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := time.Now().UTC().Add(-time.Hour)

	b := testutil.NewBuilder(t, f.store).
		WithWorkItem("item", testutil.WithItemStatus(domain.WorkItemInProgress)).
		WithStory("orphan", "item",
			testutil.WithStoryStatus(domain.StoryInProgress),
			testutil.WithHeartbeat(stale),
			testutil.WithSessionID("sess-old")).
		Build(ctx)

	n, err := f.orch.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	story, err := f.store.Story(ctx, b.StoryID("orphan"))
	require.NoError(t, err)
	require.Equal(t, domain.StoryReady, story.Status)
	require.Empty(t, story.ErrorMessage)
	require.Nil(t, story.StartedAt)
	require.Nil(t, story.LastHeartbeatAt)
	require.Equal(t, "sess-old", story.SessionID, "session survives recovery for resumption")

	logs, err := f.store.LogsByStory(ctx, story.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.EventRetried, logs[0].EventType)
}

func TestRecover_MissingHeartbeatCountsAsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := testutil.NewBuilder(t, f.store).
		WithWorkItem("item", testutil.WithItemStatus(domain.WorkItemInProgress)).
		WithStory("orphan", "item", testutil.WithStoryStatus(domain.StoryInProgress)).
		Build(ctx)

	n, err := f.orch.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	story, err := f.store.Story(ctx, b.StoryID("orphan"))
	require.NoError(t, err)
	require.Equal(t, domain.StoryReady, story.Status)
}

func TestRecover_FreshHeartbeatLeftAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := testutil.NewBuilder(t, f.store).
		WithWorkItem("item", testutil.WithItemStatus(domain.WorkItemInProgress)).
		WithStory("live", "item",
			testutil.WithStoryStatus(domain.StoryInProgress),
			testutil.WithHeartbeat(time.Now().UTC())).
		Build(ctx)

	n, err := f.orch.Recover(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	story, err := f.store.Story(ctx, b.StoryID("live"))
	require.NoError(t, err)
	require.Equal(t, domain.StoryInProgress, story.Status)
}

func TestRecover_IgnoresOtherStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewBuilder(t, f.store).
		WithWorkItem("item", testutil.WithItemStatus(domain.WorkItemRefined)).
		WithStory("ready", "item", testutil.WithStoryStatus(domain.StoryReady)).
		WithStory("done", "item", testutil.WithStoryStatus(domain.StoryCompleted)).
		WithStory("failed", "item", testutil.WithStoryStatus(domain.StoryError)).
		Build(ctx)

	n, err := f.orch.Recover(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecover_RecoveredStoryIsSchedulable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := time.Now().UTC().Add(-time.Hour)

	b := testutil.NewBuilder(t, f.store).
		WithWorkItem("item", testutil.WithItemStatus(domain.WorkItemInProgress)).
		WithStory("orphan", "item",
			testutil.WithStoryStatus(domain.StoryInProgress),
			testutil.WithHeartbeat(stale)).
		Build(ctx)

	_, err := f.orch.Recover(ctx)
	require.NoError(t, err)

	next, err := f.orch.SelectNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, b.StoryID("orphan"), next.ID)
}
