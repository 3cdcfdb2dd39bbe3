package domain

import "time"

// DefaultStoryPriority is used when the planner omits a priority.
const DefaultStoryPriority = 5

// DeveloperStory is a machine-actionable task produced by refinement.
// Stories cannot outlive their work item; the store cascades deletes.
type DeveloperStory struct {
	ID           int64
	WorkItemID   int64
	StoryType    StoryType
	Title        string
	Description  string
	Instructions string
	Priority     int // lower is earlier, default 5
	Status       StoryStatus
	ErrorMessage string

	// SessionID is the opaque executor conversation token. Empty until
	// the first run reports one; empty means a fresh session next run.
	SessionID string

	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastHeartbeatAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch bumps UpdatedAt.
func (s *DeveloperStory) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Dependency is a directed prerequisite edge: Dependent cannot start
// until Required is completed. (Dependent, Required) pairs are unique
// and self-edges are rejected by the store schema.
type Dependency struct {
	ID               int64
	DependentStoryID int64
	RequiredStoryID  int64
	Description      string
	CreatedAt        time.Time
}

// ResolvedDependency is a dependency edge with the prerequisite's
// current status resolved, as returned by Store.DependenciesOf.
type ResolvedDependency struct {
	Dependency
	RequiredStatus StoryStatus
	RequiredTitle  string
}

// Satisfied reports whether the prerequisite is completed.
func (d ResolvedDependency) Satisfied() bool {
	return d.RequiredStatus == StoryCompleted
}

// BlockedStory pairs a blocked story with its unmet prerequisites,
// for operator diagnostics.
type BlockedStory struct {
	Story *DeveloperStory
	Unmet []ResolvedDependency
}
