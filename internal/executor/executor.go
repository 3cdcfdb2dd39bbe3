// Package executor runs the coding agent as a subprocess in a story's
// workspace, optionally continuing a previous conversation.
package executor

import (
	"context"
	"time"
)

// Options configures a single agent invocation.
type Options struct {
	// APIKey is the agent credential. When empty, the well-known
	// ANTHROPIC_AUTH_TOKEN environment variable is used. Credentials
	// travel only through the subprocess environment, never argv.
	APIKey string

	// BaseURL overrides the agent's upstream endpoint.
	BaseURL string

	// Model is passed through to the agent.
	Model string

	// Timeout is the per-invocation wall-clock limit. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration
}

// Result is the outcome of one agent invocation.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	SessionID string
}

// Success reports whether the agent exited cleanly.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Executor is the coding-agent contract.
type Executor interface {
	// IsAvailable probes for the agent binary. Never returns an error.
	IsAvailable(ctx context.Context) bool

	// Start begins a new session with the given instruction in workDir.
	Start(ctx context.Context, instruction, workDir string, opts Options) (*Result, error)

	// ContinueSession continues the conversation addressed by sessionID.
	ContinueSession(ctx context.Context, sessionID, instruction, workDir string, opts Options) (*Result, error)
}
