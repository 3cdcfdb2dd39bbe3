package domain

// WorkItemType categorizes operator-submitted work.
type WorkItemType string

const (
	TypeUserStory WorkItemType = "user_story"
	TypeBug       WorkItemType = "bug"
)

// IsValid returns true if the type is a recognized work item type.
func (t WorkItemType) IsValid() bool {
	switch t {
	case TypeUserStory, TypeBug:
		return true
	default:
		return false
	}
}

// WorkItemStatus represents the lifecycle state of a work item.
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemRefining   WorkItemStatus = "refining"
	WorkItemRefined    WorkItemStatus = "refined"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemCompleted  WorkItemStatus = "completed"
	WorkItemError      WorkItemStatus = "error"
)

// String returns the string representation of the status.
func (s WorkItemStatus) String() string { return string(s) }

// IsValid returns true if the status is a recognized work item status.
func (s WorkItemStatus) IsValid() bool {
	switch s {
	case WorkItemPending, WorkItemRefining, WorkItemRefined,
		WorkItemInProgress, WorkItemCompleted, WorkItemError:
		return true
	default:
		return false
	}
}

// StoryStatus represents the lifecycle state of a developer story.
type StoryStatus string

const (
	StoryPending    StoryStatus = "pending"
	StoryBlocked    StoryStatus = "blocked"
	StoryReady      StoryStatus = "ready"
	StoryInProgress StoryStatus = "in_progress"
	StoryCompleted  StoryStatus = "completed"
	StoryError      StoryStatus = "error"
)

// String returns the string representation of the status.
func (s StoryStatus) String() string { return string(s) }

// IsValid returns true if the status is a recognized story status.
func (s StoryStatus) IsValid() bool {
	switch s {
	case StoryPending, StoryBlocked, StoryReady,
		StoryInProgress, StoryCompleted, StoryError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses with no outgoing transitions.
func (s StoryStatus) IsTerminal() bool { return s == StoryCompleted }

// StoryType categorizes the nature of a developer story.
// The integer codes match the planner wire format (0-3).
type StoryType int

const (
	StoryImplementation StoryType = 0
	StoryUnitTests      StoryType = 1
	StoryFeatureTests   StoryType = 2
	StoryDocumentation  StoryType = 3
)

// IsValid returns true if the type code is in range.
func (t StoryType) IsValid() bool {
	return t >= StoryImplementation && t <= StoryDocumentation
}

func (t StoryType) String() string {
	switch t {
	case StoryImplementation:
		return "implementation"
	case StoryUnitTests:
		return "unit_tests"
	case StoryFeatureTests:
		return "feature_tests"
	case StoryDocumentation:
		return "documentation"
	default:
		return "unknown"
	}
}

// EventType labels an execution log entry.
type EventType string

const (
	EventStarted         EventType = "started"
	EventCompleted       EventType = "completed"
	EventFailed          EventType = "failed"
	EventRetried         EventType = "retried"
	EventBranchCreated   EventType = "branch_created"
	EventWorktreeCreated EventType = "worktree_created"
	EventWorktreeRemoved EventType = "worktree_removed"
	EventInfo            EventType = "info"
)
