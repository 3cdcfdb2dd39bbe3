package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// WorkItemOption configures a test work item.
type WorkItemOption func(*domain.WorkItem)

// StoryOption configures a test story.
type StoryOption func(*domain.DeveloperStory)

func defaultWorkItem(key string) *domain.WorkItem {
	now := time.Now().UTC()
	return &domain.WorkItem{
		GUID:        uuid.NewString(),
		Type:        domain.TypeUserStory,
		Title:       key,
		Description: "test work item " + key,
		Priority:    5,
		Status:      domain.WorkItemPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func defaultStory(key string) *domain.DeveloperStory {
	now := time.Now().UTC()
	return &domain.DeveloperStory{
		StoryType:    domain.StoryImplementation,
		Title:        key,
		Description:  "test story " + key,
		Instructions: "implement " + key,
		Priority:     domain.DefaultStoryPriority,
		Status:       domain.StoryPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WithItemType sets the work item type.
func WithItemType(t domain.WorkItemType) WorkItemOption {
	return func(item *domain.WorkItem) { item.Type = t }
}

// WithItemStatus sets the work item status.
func WithItemStatus(s domain.WorkItemStatus) WorkItemOption {
	return func(item *domain.WorkItem) { item.Status = s }
}

// WithItemPriority sets the work item priority.
func WithItemPriority(p int) WorkItemOption {
	return func(item *domain.WorkItem) { item.Priority = p }
}

// WithStoryType sets the story type.
func WithStoryType(t domain.StoryType) StoryOption {
	return func(story *domain.DeveloperStory) { story.StoryType = t }
}

// WithStoryStatus sets the story status.
func WithStoryStatus(s domain.StoryStatus) StoryOption {
	return func(story *domain.DeveloperStory) { story.Status = s }
}

// WithStoryPriority sets the story priority.
func WithStoryPriority(p int) StoryOption {
	return func(story *domain.DeveloperStory) { story.Priority = p }
}

// WithSessionID sets the executor session token.
func WithSessionID(id string) StoryOption {
	return func(story *domain.DeveloperStory) { story.SessionID = id }
}

// WithHeartbeat sets the last heartbeat timestamp.
func WithHeartbeat(at time.Time) StoryOption {
	return func(story *domain.DeveloperStory) { story.LastHeartbeatAt = &at }
}
