package executor

import "context"

// Mock is a configurable Executor for tests.
// Behavior is injected via function fields; counters record usage.
type Mock struct {
	// StartFunc is called by Start. If nil, a zero-exit Result is returned.
	StartFunc func(ctx context.Context, instruction, workDir string, opts Options) (*Result, error)

	// ContinueFunc is called by ContinueSession. If nil, Start behavior applies.
	ContinueFunc func(ctx context.Context, sessionID, instruction, workDir string, opts Options) (*Result, error)

	// Available is returned by IsAvailable. Defaults to true via NewMock.
	Available bool

	startCount     int
	continueCount  int
	availableCount int
}

// Ensure Mock implements Executor.
var _ Executor = (*Mock)(nil)

// NewMock creates a mock executor that reports itself available.
func NewMock() *Mock {
	return &Mock{Available: true}
}

// IsAvailable returns the configured availability.
func (m *Mock) IsAvailable(_ context.Context) bool {
	m.availableCount++
	return m.Available
}

// Start invokes StartFunc or returns a successful empty result.
func (m *Mock) Start(ctx context.Context, instruction, workDir string, opts Options) (*Result, error) {
	m.startCount++
	if m.StartFunc != nil {
		return m.StartFunc(ctx, instruction, workDir, opts)
	}
	return &Result{}, nil
}

// ContinueSession invokes ContinueFunc, falling back to StartFunc.
func (m *Mock) ContinueSession(ctx context.Context, sessionID, instruction, workDir string, opts Options) (*Result, error) {
	m.continueCount++
	if m.ContinueFunc != nil {
		return m.ContinueFunc(ctx, sessionID, instruction, workDir, opts)
	}
	return m.Start(ctx, instruction, workDir, opts)
}

// StartCount returns how many times Start was called.
func (m *Mock) StartCount() int { return m.startCount }

// ContinueCount returns how many times ContinueSession was called.
func (m *Mock) ContinueCount() int { return m.continueCount }

// AvailableCount returns how many times IsAvailable was called.
func (m *Mock) AvailableCount() int { return m.availableCount }
