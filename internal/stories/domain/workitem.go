// Package domain provides the pure domain layer for work items and
// developer stories with no infrastructure dependencies.
//
// The package defines the entities, their status enums, the error kinds
// the rest of the system classifies against, and the Store interface
// that abstracts persistence. It imports only the standard library and
// the uuid package.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field bounds for operator input.
const (
	MaxTitleLen       = 500
	MaxDescriptionLen = 4000
	MinPriority       = 1
	MaxPriority       = 9
)

// WorkItem is an operator-submitted coarse-grained unit of work.
// IDs are assigned by the store on first persist; the GUID is assigned
// at construction and is a stable external handle.
type WorkItem struct {
	ID                 int64
	GUID               string
	Type               WorkItemType
	Title              string
	Description        string
	AcceptanceCriteria string
	Priority           int // 1..9, 1 is most urgent
	Status             WorkItemStatus
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewWorkItem validates operator input and constructs a pending work item.
// Returns an error matching ErrValidation on bad input.
func NewWorkItem(itemType WorkItemType, title, description, acceptance string, priority int) (*WorkItem, error) {
	if !itemType.IsValid() {
		return nil, fmt.Errorf("%w: unknown work item type %q", ErrValidation, itemType)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > MaxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLen)
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if len(description) > MaxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrValidation, MaxDescriptionLen)
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, fmt.Errorf("%w: priority %d outside [%d, %d]", ErrValidation, priority, MinPriority, MaxPriority)
	}

	now := time.Now().UTC()
	return &WorkItem{
		GUID:               uuid.NewString(),
		Type:               itemType,
		Title:              title,
		Description:        description,
		AcceptanceCriteria: acceptance,
		Priority:           priority,
		Status:             WorkItemPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Touch bumps UpdatedAt. Every content or status mutation must call it.
func (w *WorkItem) Touch() {
	w.UpdatedAt = time.Now().UTC()
}
