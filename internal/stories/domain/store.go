package domain

import "context"

// WorkItemFilter provides filtering options for listing work items.
type WorkItemFilter struct {
	// Status filters by lifecycle state. Empty means all states.
	Status WorkItemStatus

	// Type filters by work item type. Empty means all types.
	Type WorkItemType

	// Limit restricts the number of items returned. 0 means no limit.
	Limit int
}

// Store is the persistence interface the rest of the system programs
// against. It is the sole source of truth: no component caches entities
// beyond a single transaction.
//
// Implementations must support flat transactions only: calling
// WithTransaction on a transaction-scoped Store fails with
// ErrInvalidOperation.
type Store interface {
	// SaveWorkItem inserts (ID == 0, assigning the ID) or updates a work item.
	SaveWorkItem(ctx context.Context, item *WorkItem) error

	// WorkItem retrieves a work item by id.
	// Returns an error matching ErrNotFound if absent.
	WorkItem(ctx context.Context, id int64) (*WorkItem, error)

	// ListWorkItems retrieves work items matching the filter,
	// ordered by (priority asc, id asc).
	ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*WorkItem, error)

	// DeleteWorkItem removes a work item and cascades to its stories,
	// their edges, and their logs.
	DeleteWorkItem(ctx context.Context, id int64) error

	// InProgressUserStory returns the at-most-one user-story work item in
	// status in_progress, or nil when there is none.
	InProgressUserStory(ctx context.Context) (*WorkItem, error)

	// SaveStory inserts (ID == 0) or updates a developer story.
	SaveStory(ctx context.Context, story *DeveloperStory) error

	// Story retrieves a developer story by id.
	// Returns an error matching ErrNotFound if absent.
	Story(ctx context.Context, id int64) (*DeveloperStory, error)

	// StoriesByWorkItem returns a work item's stories ordered by (storyType, id).
	StoriesByWorkItem(ctx context.Context, workItemID int64) ([]*DeveloperStory, error)

	// StoriesByStatus returns stories in the given status ordered by
	// (priority asc, id asc).
	StoriesByStatus(ctx context.Context, status StoryStatus) ([]*DeveloperStory, error)

	// BlockedStories returns all stories in status blocked ordered by
	// (priority asc, id asc).
	BlockedStories(ctx context.Context) ([]*DeveloperStory, error)

	// SaveDependency inserts a prerequisite edge. The schema rejects
	// self-edges and duplicate (dependent, required) pairs.
	SaveDependency(ctx context.Context, dep *Dependency) error

	// AllDependencies returns every edge in the graph, ordered by id.
	AllDependencies(ctx context.Context) ([]Dependency, error)

	// DependenciesOf returns the prerequisite edges of a story with the
	// prerequisite's current status resolved.
	DependenciesOf(ctx context.Context, storyID int64) ([]ResolvedDependency, error)

	// DependentsOf returns the edges whose prerequisite is the given
	// story, with each dependent's current status resolved.
	DependentsOf(ctx context.Context, storyID int64) ([]ResolvedDependency, error)

	// AppendLog appends an execution log entry. Logs are append-only.
	AppendLog(ctx context.Context, entry *ExecutionLog) error

	// LogsByStory returns a story's log entries ordered by (timestamp, id).
	LogsByStory(ctx context.Context, storyID int64) ([]*ExecutionLog, error)

	// WithTransaction runs fn against a transaction-scoped Store under
	// ACID semantics: commit on nil return, rollback on error or panic.
	WithTransaction(ctx context.Context, fn func(tx Store) error) error

	// Close releases any resources held by the store.
	Close() error
}
