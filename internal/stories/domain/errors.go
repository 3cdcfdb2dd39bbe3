package domain

import (
	"errors"
	"fmt"
)

// Error kinds for the orchestrator. Boundary code wraps collaborator
// failures into exactly one of these so callers can classify with
// errors.Is without knowing the collaborator.
var (
	// ErrValidation indicates invalid operator input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition indicates a status change the state machine rejects.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInvariantViolation indicates the persisted graph or status is inconsistent.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrCycle indicates a dependency edge set that is not a DAG.
	ErrCycle = errors.New("dependency cycle")

	// ErrRepo indicates a git repository operation failure.
	ErrRepo = errors.New("repository operation failed")

	// ErrPlanner indicates the planner returned a structurally invalid decomposition.
	ErrPlanner = errors.New("planner returned invalid decomposition")

	// ErrExternal indicates a transport-level failure talking to the planner.
	ErrExternal = errors.New("external call failed")

	// ErrParse indicates unparseable planner output after extraction.
	ErrParse = errors.New("parse failed")

	// ErrExecutor indicates the coding agent could not be started.
	ErrExecutor = errors.New("executor failed")

	// ErrTimeout indicates an external operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates the caller cancelled an external operation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrConfig indicates a missing credential or endpoint.
	ErrConfig = errors.New("configuration missing")

	// ErrInvalidOperation indicates misuse of the store API, e.g. nesting transactions.
	ErrInvalidOperation = errors.New("invalid operation")
)

// WorkItemNotFoundError reports a missing work item by id.
type WorkItemNotFoundError struct {
	ID int64
}

func (e *WorkItemNotFoundError) Error() string {
	return fmt.Sprintf("work item %d not found", e.ID)
}

// Unwrap makes the error match ErrNotFound.
func (e *WorkItemNotFoundError) Unwrap() error { return ErrNotFound }

// StoryNotFoundError reports a missing developer story by id.
type StoryNotFoundError struct {
	ID int64
}

func (e *StoryNotFoundError) Error() string {
	return fmt.Sprintf("developer story %d not found", e.ID)
}

// Unwrap makes the error match ErrNotFound.
func (e *StoryNotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError reports a rejected status transition.
type TransitionError struct {
	Entity string // "work item" or "story"
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

// Unwrap makes the error match ErrIllegalTransition.
func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
