package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// Builder accumulates work items, stories, and dependency edges and
// inserts them in the correct order. Stories and edges refer to earlier
// entries by the key they were registered under, so tests read as a
// small graph description rather than a pile of inserts.
type Builder struct {
	t     *testing.T
	store domain.Store

	items   []itemEntry
	stories []storyEntry
	deps    []depEntry

	// key -> assigned ID, filled during Build.
	itemIDs  map[string]int64
	storyIDs map[string]int64
}

type itemEntry struct {
	key  string
	item *domain.WorkItem
}

type storyEntry struct {
	key     string
	itemKey string
	story   *domain.DeveloperStory
}

type depEntry struct {
	dependentKey string
	requiredKey  string
}

// NewBuilder creates a builder for the given store.
func NewBuilder(t *testing.T, store domain.Store) *Builder {
	t.Helper()
	return &Builder{
		t:        t,
		store:    store,
		itemIDs:  make(map[string]int64),
		storyIDs: make(map[string]int64),
	}
}

// WithWorkItem registers a work item under key.
func (b *Builder) WithWorkItem(key string, opts ...WorkItemOption) *Builder {
	item := defaultWorkItem(key)
	for _, opt := range opts {
		opt(item)
	}
	b.items = append(b.items, itemEntry{key: key, item: item})
	return b
}

// WithStory registers a story under key, belonging to itemKey.
func (b *Builder) WithStory(key, itemKey string, opts ...StoryOption) *Builder {
	story := defaultStory(key)
	for _, opt := range opts {
		opt(story)
	}
	b.stories = append(b.stories, storyEntry{key: key, itemKey: itemKey, story: story})
	return b
}

// WithDependency registers an edge: dependentKey requires requiredKey.
func (b *Builder) WithDependency(dependentKey, requiredKey string) *Builder {
	b.deps = append(b.deps, depEntry{dependentKey: dependentKey, requiredKey: requiredKey})
	return b
}

// Build inserts everything in dependency order and returns the builder
// for ID lookups.
func (b *Builder) Build(ctx context.Context) *Builder {
	b.t.Helper()

	for _, entry := range b.items {
		require.NoError(b.t, b.store.SaveWorkItem(ctx, entry.item))
		b.itemIDs[entry.key] = entry.item.ID
	}
	for _, entry := range b.stories {
		itemID, ok := b.itemIDs[entry.itemKey]
		require.True(b.t, ok, "unknown work item key %q", entry.itemKey)
		entry.story.WorkItemID = itemID
		require.NoError(b.t, b.store.SaveStory(ctx, entry.story))
		b.storyIDs[entry.key] = entry.story.ID
	}
	for _, dep := range b.deps {
		dependent, ok := b.storyIDs[dep.dependentKey]
		require.True(b.t, ok, "unknown story key %q", dep.dependentKey)
		required, ok := b.storyIDs[dep.requiredKey]
		require.True(b.t, ok, "unknown story key %q", dep.requiredKey)
		require.NoError(b.t, b.store.SaveDependency(ctx, &domain.Dependency{
			DependentStoryID: dependent,
			RequiredStoryID:  required,
		}))
	}
	return b
}

// WorkItemID returns the assigned ID for a work item key.
func (b *Builder) WorkItemID(key string) int64 {
	b.t.Helper()
	id, ok := b.itemIDs[key]
	require.True(b.t, ok, "unknown work item key %q", key)
	return id
}

// StoryID returns the assigned ID for a story key.
func (b *Builder) StoryID(key string) int64 {
	b.t.Helper()
	id, ok := b.storyIDs[key]
	require.True(b.t, ok, "unknown story key %q", key)
	return id
}
