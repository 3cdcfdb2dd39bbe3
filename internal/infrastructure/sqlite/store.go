package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// workItemColumns is the list of columns to select for work item queries.
const workItemColumns = `id, guid, item_type, title, description, acceptance_criteria,
	priority, status, error_message, created_at, updated_at`

// storyColumns is the list of columns to select for story queries.
const storyColumns = `id, work_item_id, story_type, title, description, instructions,
	priority, status, error_message, session_id,
	started_at, completed_at, last_heartbeat_at, created_at, updated_at`

// logColumns is the list of columns to select for execution log queries.
const logColumns = `id, developer_story_id, timestamp, event_type, details, error_message, metadata`

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements domain.Store on SQLite. A Store is either root
// (bound to the *sql.DB) or transaction-scoped (bound to a *sql.Tx
// handed out by WithTransaction).
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

// NewStore wraps an open database in a root Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// WithTransaction runs fn against a transaction-scoped Store. Flat
// only: calling it on a transaction-scoped Store fails with
// ErrInvalidOperation. Commits on nil return, rolls back otherwise.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.tx != nil {
		return fmt.Errorf("%w: nested transactions are not supported", domain.ErrInvalidOperation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Store{db: s.db, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the underlying database. No-op on transaction-scoped stores.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func scanWorkItem(scanner interface{ Scan(...any) error }) (*workItemModel, error) {
	var m workItemModel
	err := scanner.Scan(
		&m.ID, &m.GUID, &m.ItemType, &m.Title, &m.Description, &m.AcceptanceCriteria,
		&m.Priority, &m.Status, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

func scanStory(scanner interface{ Scan(...any) error }) (*storyModel, error) {
	var m storyModel
	err := scanner.Scan(
		&m.ID, &m.WorkItemID, &m.StoryType, &m.Title, &m.Description, &m.Instructions,
		&m.Priority, &m.Status, &m.ErrorMessage, &m.SessionID,
		&m.StartedAt, &m.CompletedAt, &m.LastHeartbeatAt, &m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

func scanLog(scanner interface{ Scan(...any) error }) (*logModel, error) {
	var m logModel
	err := scanner.Scan(
		&m.ID, &m.DeveloperStoryID, &m.Timestamp, &m.EventType,
		&m.Details, &m.ErrorMessage, &m.Metadata,
	)
	return &m, err
}

// SaveWorkItem inserts a new work item (ID == 0, assigning the ID) or
// updates an existing one.
func (s *Store) SaveWorkItem(ctx context.Context, item *domain.WorkItem) error {
	m := toWorkItemModel(item)

	if item.ID == 0 {
		result, err := s.q().ExecContext(ctx,
			`INSERT INTO work_items (
				guid, item_type, title, description, acceptance_criteria,
				priority, status, error_message, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.GUID, m.ItemType, m.Title, m.Description, m.AcceptanceCriteria,
			m.Priority, m.Status, m.ErrorMessage, m.CreatedAt, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert work item: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		item.ID = id
		return nil
	}

	_, err := s.q().ExecContext(ctx,
		`UPDATE work_items SET
			item_type = ?, title = ?, description = ?, acceptance_criteria = ?,
			priority = ?, status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		m.ItemType, m.Title, m.Description, m.AcceptanceCriteria,
		m.Priority, m.Status, m.ErrorMessage, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update work item: %w", err)
	}
	return nil
}

// WorkItem retrieves a work item by id.
func (s *Store) WorkItem(ctx context.Context, id int64) (*domain.WorkItem, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	m, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.WorkItemNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work item: %w", err)
	}
	return m.toDomain(), nil
}

// ListWorkItems retrieves work items matching the filter ordered by
// (priority asc, id asc).
func (s *Store) ListWorkItems(ctx context.Context, filter domain.WorkItemFilter) ([]*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND item_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY priority ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.WorkItem
	for rows.Next() {
		m, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item row: %w", err)
		}
		items = append(items, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work item rows: %w", err)
	}
	return items, nil
}

// DeleteWorkItem removes a work item; stories, edges, and logs cascade.
func (s *Store) DeleteWorkItem(ctx context.Context, id int64) error {
	result, err := s.q().ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete work item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.WorkItemNotFoundError{ID: id}
	}
	return nil
}

// InProgressUserStory returns the at-most-one user-story work item in
// progress, or nil when there is none.
func (s *Store) InProgressUserStory(ctx context.Context) (*domain.WorkItem, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE item_type = ? AND status = ? LIMIT 1`,
		string(domain.TypeUserStory), string(domain.WorkItemInProgress))
	m, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find in-progress user story: %w", err)
	}
	return m.toDomain(), nil
}

// SaveStory inserts a new developer story (ID == 0) or updates an existing one.
func (s *Store) SaveStory(ctx context.Context, story *domain.DeveloperStory) error {
	m := toStoryModel(story)

	if story.ID == 0 {
		result, err := s.q().ExecContext(ctx,
			`INSERT INTO developer_stories (
				work_item_id, story_type, title, description, instructions,
				priority, status, error_message, session_id,
				started_at, completed_at, last_heartbeat_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.WorkItemID, m.StoryType, m.Title, m.Description, m.Instructions,
			m.Priority, m.Status, m.ErrorMessage, m.SessionID,
			m.StartedAt, m.CompletedAt, m.LastHeartbeatAt, m.CreatedAt, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert story: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		story.ID = id
		return nil
	}

	_, err := s.q().ExecContext(ctx,
		`UPDATE developer_stories SET
			story_type = ?, title = ?, description = ?, instructions = ?,
			priority = ?, status = ?, error_message = ?, session_id = ?,
			started_at = ?, completed_at = ?, last_heartbeat_at = ?, updated_at = ?
		WHERE id = ?`,
		m.StoryType, m.Title, m.Description, m.Instructions,
		m.Priority, m.Status, m.ErrorMessage, m.SessionID,
		m.StartedAt, m.CompletedAt, m.LastHeartbeatAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}
	return nil
}

// Story retrieves a developer story by id.
func (s *Store) Story(ctx context.Context, id int64) (*domain.DeveloperStory, error) {
	row := s.q().QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM developer_stories WHERE id = ?`, id)
	m, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.StoryNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) queryStories(ctx context.Context, query string, args ...any) ([]*domain.DeveloperStory, error) {
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stories []*domain.DeveloperStory
	for rows.Next() {
		m, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating story rows: %w", err)
	}
	return stories, nil
}

// StoriesByWorkItem returns a work item's stories ordered by (storyType, id).
func (s *Store) StoriesByWorkItem(ctx context.Context, workItemID int64) ([]*domain.DeveloperStory, error) {
	return s.queryStories(ctx,
		`SELECT `+storyColumns+` FROM developer_stories
		 WHERE work_item_id = ? ORDER BY story_type ASC, id ASC`, workItemID)
}

// StoriesByStatus returns stories in the given status ordered by (priority, id).
func (s *Store) StoriesByStatus(ctx context.Context, status domain.StoryStatus) ([]*domain.DeveloperStory, error) {
	return s.queryStories(ctx,
		`SELECT `+storyColumns+` FROM developer_stories
		 WHERE status = ? ORDER BY priority ASC, id ASC`, string(status))
}

// BlockedStories returns all blocked stories ordered by (priority, id).
func (s *Store) BlockedStories(ctx context.Context) ([]*domain.DeveloperStory, error) {
	return s.StoriesByStatus(ctx, domain.StoryBlocked)
}

// SaveDependency inserts a prerequisite edge. A zero CreatedAt is
// stamped with the current time.
func (s *Store) SaveDependency(ctx context.Context, dep *domain.Dependency) error {
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	}
	result, err := s.q().ExecContext(ctx,
		`INSERT INTO developer_story_dependencies (
			dependent_story_id, required_story_id, description, created_at
		) VALUES (?, ?, ?, ?)`,
		dep.DependentStoryID, dep.RequiredStoryID, dep.Description, dep.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dependency: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	dep.ID = id
	return nil
}

// AllDependencies returns every edge in the graph ordered by id.
func (s *Store) AllDependencies(ctx context.Context) ([]domain.Dependency, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT id, dependent_story_id, required_story_id, description, created_at
		 FROM developer_story_dependencies ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []domain.Dependency
	for rows.Next() {
		var d domain.Dependency
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.DependentStoryID, &d.RequiredStoryID, &d.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", err)
		}
		d.CreatedAt = unixTime(createdAt)
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependency rows: %w", err)
	}
	return deps, nil
}

func (s *Store) queryResolved(ctx context.Context, query string, storyID int64) ([]domain.ResolvedDependency, error) {
	rows, err := s.q().QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []domain.ResolvedDependency
	for rows.Next() {
		var d domain.ResolvedDependency
		var createdAt int64
		var status, title string
		if err := rows.Scan(&d.ID, &d.DependentStoryID, &d.RequiredStoryID, &d.Description,
			&createdAt, &status, &title); err != nil {
			return nil, fmt.Errorf("failed to scan resolved dependency: %w", err)
		}
		d.CreatedAt = unixTime(createdAt)
		d.RequiredStatus = domain.StoryStatus(status)
		d.RequiredTitle = title
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolved dependencies: %w", err)
	}
	return deps, nil
}

// DependenciesOf returns the prerequisite edges of a story with the
// prerequisite's current status resolved.
func (s *Store) DependenciesOf(ctx context.Context, storyID int64) ([]domain.ResolvedDependency, error) {
	return s.queryResolved(ctx,
		`SELECT d.id, d.dependent_story_id, d.required_story_id, d.description, d.created_at,
			r.status, r.title
		 FROM developer_story_dependencies d
		 JOIN developer_stories r ON r.id = d.required_story_id
		 WHERE d.dependent_story_id = ? ORDER BY d.id ASC`, storyID)
}

// DependentsOf returns edges whose prerequisite is the given story,
// with each dependent's status resolved.
func (s *Store) DependentsOf(ctx context.Context, storyID int64) ([]domain.ResolvedDependency, error) {
	return s.queryResolved(ctx,
		`SELECT d.id, d.dependent_story_id, d.required_story_id, d.description, d.created_at,
			dep.status, dep.title
		 FROM developer_story_dependencies d
		 JOIN developer_stories dep ON dep.id = d.dependent_story_id
		 WHERE d.required_story_id = ? ORDER BY d.id ASC`, storyID)
}

// AppendLog appends an execution log entry.
func (s *Store) AppendLog(ctx context.Context, entry *domain.ExecutionLog) error {
	m := toLogModel(entry)
	result, err := s.q().ExecContext(ctx,
		`INSERT INTO execution_logs (
			developer_story_id, timestamp, event_type, details, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?)`,
		m.DeveloperStoryID, m.Timestamp, m.EventType, m.Details, m.ErrorMessage, m.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// LogsByStory returns a story's log entries ordered by (timestamp, id).
func (s *Store) LogsByStory(ctx context.Context, storyID int64) ([]*domain.ExecutionLog, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT `+logColumns+` FROM execution_logs
		 WHERE developer_story_id = ? ORDER BY timestamp ASC, id ASC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*domain.ExecutionLog
	for rows.Next() {
		m, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log row: %w", err)
		}
		logs = append(logs, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution log rows: %w", err)
	}
	return logs, nil
}
