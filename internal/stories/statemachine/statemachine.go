// Package statemachine centralizes the legal status transitions for
// work items and developer stories. The CLI, orchestrator, and
// scheduler all transition entities through this package so the
// matrices cannot diverge.
package statemachine

import (
	"time"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// workItemTransitions is the legal transition matrix for work items.
var workItemTransitions = map[domain.WorkItemStatus][]domain.WorkItemStatus{
	domain.WorkItemPending:    {domain.WorkItemRefining, domain.WorkItemError},
	domain.WorkItemRefining:   {domain.WorkItemRefined, domain.WorkItemError},
	domain.WorkItemRefined:    {domain.WorkItemInProgress, domain.WorkItemError},
	domain.WorkItemInProgress: {domain.WorkItemCompleted, domain.WorkItemError},
	domain.WorkItemCompleted:  {},
	domain.WorkItemError:      {domain.WorkItemPending}, // explicit retry
}

// storyTransitions is the legal transition matrix for developer stories.
var storyTransitions = map[domain.StoryStatus][]domain.StoryStatus{
	domain.StoryPending:    {domain.StoryReady, domain.StoryBlocked, domain.StoryError},
	domain.StoryBlocked:    {domain.StoryReady, domain.StoryError},
	domain.StoryReady:      {domain.StoryInProgress, domain.StoryBlocked, domain.StoryError},
	domain.StoryInProgress: {domain.StoryCompleted, domain.StoryError, domain.StoryBlocked},
	domain.StoryError:      {domain.StoryPending, domain.StoryReady}, // explicit retry
	domain.StoryCompleted:  {},                                      // terminal
}

// CanTransitionWorkItem reports whether from -> to is legal for work items.
func CanTransitionWorkItem(from, to domain.WorkItemStatus) bool {
	for _, s := range workItemTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionStory reports whether from -> to is legal for stories.
func CanTransitionStory(from, to domain.StoryStatus) bool {
	for _, s := range storyTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidWorkItemTransitions returns the set of statuses reachable from the given one.
func ValidWorkItemTransitions(from domain.WorkItemStatus) []domain.WorkItemStatus {
	out := make([]domain.WorkItemStatus, len(workItemTransitions[from]))
	copy(out, workItemTransitions[from])
	return out
}

// ValidStoryTransitions returns the set of statuses reachable from the given one.
func ValidStoryTransitions(from domain.StoryStatus) []domain.StoryStatus {
	out := make([]domain.StoryStatus, len(storyTransitions[from]))
	copy(out, storyTransitions[from])
	return out
}

// ApplyWorkItem checks legality and mutates the work item's status,
// bumping UpdatedAt. The item is untouched on rejection.
func ApplyWorkItem(item *domain.WorkItem, to domain.WorkItemStatus) error {
	if !CanTransitionWorkItem(item.Status, to) {
		return &domain.TransitionError{
			Entity: "work item",
			From:   item.Status.String(),
			To:     to.String(),
		}
	}
	if to == domain.WorkItemPending {
		// Retry from error clears the failure message.
		item.ErrorMessage = ""
	}
	item.Status = to
	item.Touch()
	return nil
}

// ApplyStory checks legality and mutates the story's status with its
// timestamp side effects: StartedAt is set on entry to in_progress,
// CompletedAt on entry to completed, and both are cleared (along with
// the error message and heartbeat) on retry transitions back to
// pending or ready. The story is untouched on rejection.
func ApplyStory(story *domain.DeveloperStory, to domain.StoryStatus) error {
	if !CanTransitionStory(story.Status, to) {
		return &domain.TransitionError{
			Entity: "story",
			From:   story.Status.String(),
			To:     to.String(),
		}
	}

	now := time.Now().UTC()
	switch to {
	case domain.StoryInProgress:
		if story.StartedAt == nil {
			story.StartedAt = &now
		}
		story.CompletedAt = nil
	case domain.StoryCompleted:
		story.CompletedAt = &now
	case domain.StoryPending, domain.StoryReady:
		if story.Status == domain.StoryError {
			story.StartedAt = nil
			story.CompletedAt = nil
			story.LastHeartbeatAt = nil
			story.ErrorMessage = ""
		}
	}

	story.Status = to
	story.Touch()
	return nil
}
