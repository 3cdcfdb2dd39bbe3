package sqlite

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// workItemModel maps a work_items row. Timestamps are Unix seconds.
type workItemModel struct {
	ID                 int64
	GUID               string
	ItemType           string
	Title              string
	Description        string
	AcceptanceCriteria string
	Priority           int
	Status             string
	ErrorMessage       string
	CreatedAt          int64
	UpdatedAt          int64
}

func toWorkItemModel(w *domain.WorkItem) *workItemModel {
	return &workItemModel{
		ID:                 w.ID,
		GUID:               w.GUID,
		ItemType:           string(w.Type),
		Title:              w.Title,
		Description:        w.Description,
		AcceptanceCriteria: w.AcceptanceCriteria,
		Priority:           w.Priority,
		Status:             string(w.Status),
		ErrorMessage:       w.ErrorMessage,
		CreatedAt:          w.CreatedAt.Unix(),
		UpdatedAt:          w.UpdatedAt.Unix(),
	}
}

func (m *workItemModel) toDomain() *domain.WorkItem {
	return &domain.WorkItem{
		ID:                 m.ID,
		GUID:               m.GUID,
		Type:               domain.WorkItemType(m.ItemType),
		Title:              m.Title,
		Description:        m.Description,
		AcceptanceCriteria: m.AcceptanceCriteria,
		Priority:           m.Priority,
		Status:             domain.WorkItemStatus(m.Status),
		ErrorMessage:       m.ErrorMessage,
		CreatedAt:          time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:          time.Unix(m.UpdatedAt, 0).UTC(),
	}
}

// storyModel maps a developer_stories row.
type storyModel struct {
	ID              int64
	WorkItemID      int64
	StoryType       int
	Title           string
	Description     string
	Instructions    string
	Priority        int
	Status          string
	ErrorMessage    string
	SessionID       string
	StartedAt       *int64
	CompletedAt     *int64
	LastHeartbeatAt *int64
	CreatedAt       int64
	UpdatedAt       int64
}

func toStoryModel(s *domain.DeveloperStory) *storyModel {
	return &storyModel{
		ID:              s.ID,
		WorkItemID:      s.WorkItemID,
		StoryType:       int(s.StoryType),
		Title:           s.Title,
		Description:     s.Description,
		Instructions:    s.Instructions,
		Priority:        s.Priority,
		Status:          string(s.Status),
		ErrorMessage:    s.ErrorMessage,
		SessionID:       s.SessionID,
		StartedAt:       unixPtr(s.StartedAt),
		CompletedAt:     unixPtr(s.CompletedAt),
		LastHeartbeatAt: unixPtr(s.LastHeartbeatAt),
		CreatedAt:       s.CreatedAt.Unix(),
		UpdatedAt:       s.UpdatedAt.Unix(),
	}
}

func (m *storyModel) toDomain() *domain.DeveloperStory {
	return &domain.DeveloperStory{
		ID:              m.ID,
		WorkItemID:      m.WorkItemID,
		StoryType:       domain.StoryType(m.StoryType),
		Title:           m.Title,
		Description:     m.Description,
		Instructions:    m.Instructions,
		Priority:        m.Priority,
		Status:          domain.StoryStatus(m.Status),
		ErrorMessage:    m.ErrorMessage,
		SessionID:       m.SessionID,
		StartedAt:       timePtr(m.StartedAt),
		CompletedAt:     timePtr(m.CompletedAt),
		LastHeartbeatAt: timePtr(m.LastHeartbeatAt),
		CreatedAt:       time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:       time.Unix(m.UpdatedAt, 0).UTC(),
	}
}

// logModel maps an execution_logs row. Metadata is JSON encoded.
type logModel struct {
	ID               int64
	DeveloperStoryID int64
	Timestamp        int64
	EventType        string
	Details          string
	ErrorMessage     string
	Metadata         *string
}

func toLogModel(l *domain.ExecutionLog) *logModel {
	m := &logModel{
		ID:               l.ID,
		DeveloperStoryID: l.DeveloperStoryID,
		Timestamp:        l.Timestamp.Unix(),
		EventType:        string(l.EventType),
		Details:          l.Details,
		ErrorMessage:     l.ErrorMessage,
	}
	if len(l.Metadata) > 0 {
		if encoded, err := json.Marshal(l.Metadata); err == nil {
			s := string(encoded)
			m.Metadata = &s
		}
	}
	return m
}

func (m *logModel) toDomain() *domain.ExecutionLog {
	l := &domain.ExecutionLog{
		ID:               m.ID,
		DeveloperStoryID: m.DeveloperStoryID,
		Timestamp:        time.Unix(m.Timestamp, 0).UTC(),
		EventType:        domain.EventType(m.EventType),
		Details:          m.Details,
		ErrorMessage:     m.ErrorMessage,
	}
	if m.Metadata != nil {
		_ = json.Unmarshal([]byte(*m.Metadata), &l.Metadata)
	}
	return l
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func unixTime(u int64) time.Time {
	return time.Unix(u, 0).UTC()
}

func timePtr(u *int64) *time.Time {
	if u == nil {
		return nil
	}
	t := time.Unix(*u, 0).UTC()
	return &t
}
