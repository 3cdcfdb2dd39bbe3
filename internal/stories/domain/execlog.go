package domain

import "time"

// ExecutionLog is an append-only audit record for a developer story.
// Logs are never updated or deleted except by work item cascade.
type ExecutionLog struct {
	ID               int64
	DeveloperStoryID int64
	Timestamp        time.Time
	EventType        EventType
	Details          string
	ErrorMessage     string

	// Metadata carries opaque structured attributes such as duration,
	// commit reference, or exit code. Persisted as JSON.
	Metadata map[string]string
}

// NewLog constructs a log entry stamped with the current UTC time.
func NewLog(storyID int64, event EventType, details string) *ExecutionLog {
	return &ExecutionLog{
		DeveloperStoryID: storyID,
		Timestamp:        time.Now().UTC(),
		EventType:        event,
		Details:          details,
	}
}

// WithError attaches an error message to the entry.
func (l *ExecutionLog) WithError(msg string) *ExecutionLog {
	l.ErrorMessage = msg
	return l
}

// WithMeta attaches a metadata attribute to the entry.
func (l *ExecutionLog) WithMeta(key, value string) *ExecutionLog {
	if l.Metadata == nil {
		l.Metadata = make(map[string]string)
	}
	l.Metadata[key] = value
	return l
}
