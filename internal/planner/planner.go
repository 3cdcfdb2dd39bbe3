// Package planner asks an LLM to decompose a work item into a
// dependency graph of developer stories.
//
// The planner returns a pure value; mapping story indices to stored ids
// and persisting the graph is the orchestrator's job.
package planner

import (
	"context"
	"fmt"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// PlannedStory is one fine-grained story in a decomposition.
// StoryType uses the wire codes 0..3.
type PlannedStory struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	StoryType    int    `json:"storyType"`
	Priority     int    `json:"priority,omitempty"`
}

// PlannedDependency is an index-based prerequisite edge between two
// stories of the same decomposition.
type PlannedDependency struct {
	DependentStoryIndex int    `json:"dependentStoryIndex"`
	RequiredStoryIndex  int    `json:"requiredStoryIndex"`
	Description         string `json:"description,omitempty"`
}

// Result is a validated decomposition.
type Result struct {
	Analysis     string              `json:"analysis"`
	Stories      []PlannedStory      `json:"developerStories"`
	Dependencies []PlannedDependency `json:"dependencies"`
}

// Planner produces a decomposition for a work item.
type Planner interface {
	// Refine invokes the planner and returns a validated decomposition.
	// Failure kinds: ErrConfig (missing credential), ErrExternal
	// (transport), ErrTimeout, ErrCancelled, ErrParse (unextractable
	// JSON), ErrPlanner (structurally invalid decomposition).
	Refine(ctx context.Context, item *domain.WorkItem) (*Result, error)
}

// Validate checks story-type codes and dependency indices.
// Fails with ErrPlanner on any out-of-range value.
func (r *Result) Validate() error {
	for i, s := range r.Stories {
		if !domain.StoryType(s.StoryType).IsValid() {
			return fmt.Errorf("%w: story %d has unknown storyType %d", domain.ErrPlanner, i, s.StoryType)
		}
		if s.Title == "" {
			return fmt.Errorf("%w: story %d has no title", domain.ErrPlanner, i)
		}
	}
	for i, d := range r.Dependencies {
		if d.DependentStoryIndex < 0 || d.DependentStoryIndex >= len(r.Stories) {
			return fmt.Errorf("%w: dependency %d has out-of-range dependentStoryIndex %d",
				domain.ErrPlanner, i, d.DependentStoryIndex)
		}
		if d.RequiredStoryIndex < 0 || d.RequiredStoryIndex >= len(r.Stories) {
			return fmt.Errorf("%w: dependency %d has out-of-range requiredStoryIndex %d",
				domain.ErrPlanner, i, d.RequiredStoryIndex)
		}
		if d.DependentStoryIndex == d.RequiredStoryIndex {
			return fmt.Errorf("%w: dependency %d is a self-edge", domain.ErrPlanner, i)
		}
	}
	return nil
}
