package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/stories/domain"
)

const (
	// envAuthToken is the well-known credential variable.
	envAuthToken = "ANTHROPIC_AUTH_TOKEN"
	// envBaseURL overrides the agent's upstream endpoint.
	envBaseURL = "ANTHROPIC_BASE_URL"
	// envAPITimeout propagates the invocation timeout to the agent.
	envAPITimeout = "API_TIMEOUT_MS"

	// probeCacheKey and probeTTL bound how often IsAvailable re-probes.
	probeCacheKey = "claude-available"
	probeTTL      = 30 * time.Second
)

// ClaudeExecutor implements Executor on the Claude Code CLI.
type ClaudeExecutor struct {
	// binaryName is overridable for tests.
	binaryName string
	knownPaths []string
	probeCache *gocache.Cache
}

// Ensure ClaudeExecutor implements Executor.
var _ Executor = (*ClaudeExecutor)(nil)

// NewClaudeExecutor creates an executor for the claude CLI.
func NewClaudeExecutor() *ClaudeExecutor {
	return &ClaudeExecutor{
		binaryName: "claude",
		knownPaths: knownClaudePaths,
		probeCache: gocache.New(probeTTL, probeTTL),
	}
}

// IsAvailable probes the binary with a version flag. The result is
// cached for a short interval so schedulers can call it freely.
func (c *ClaudeExecutor) IsAvailable(ctx context.Context) bool {
	if cached, found := c.probeCache.Get(probeCacheKey); found {
		return cached.(bool)
	}

	available := c.probe(ctx)
	c.probeCache.Set(probeCacheKey, available, probeTTL)
	return available
}

func (c *ClaudeExecutor) probe(ctx context.Context) bool {
	path, err := findExecutable(c.binaryName, c.knownPaths)
	if err != nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, "--version") //nolint:gosec // G204: path from controlled lookup
	return cmd.Run() == nil
}

// Start begins a new agent session.
func (c *ClaudeExecutor) Start(ctx context.Context, instruction, workDir string, opts Options) (*Result, error) {
	return c.run(ctx, "", instruction, workDir, opts)
}

// ContinueSession continues the conversation addressed by sessionID.
func (c *ClaudeExecutor) ContinueSession(ctx context.Context, sessionID, instruction, workDir string, opts Options) (*Result, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required to continue", domain.ErrExecutor)
	}
	return c.run(ctx, sessionID, instruction, workDir, opts)
}

// buildArgs constructs the agent argv. The instruction rides as the
// final argument after --, handed to the process without a shell, so
// embedded quotes and backslashes survive as-is.
func buildArgs(sessionID, instruction string, opts Options) []string {
	args := []string{
		"--print",
		"--output-format", "json",
		"--dangerously-skip-permissions",
	}
	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, "--", instruction)
	return args
}

// buildEnv assembles the subprocess environment. Credentials are never
// placed on the command line.
func buildEnv(opts Options) []string {
	env := os.Environ()
	if opts.APIKey != "" {
		env = append(env, envAuthToken+"="+opts.APIKey)
	}
	if opts.BaseURL != "" {
		env = append(env, envBaseURL+"="+opts.BaseURL)
	}
	if opts.Timeout > 0 {
		env = append(env, envAPITimeout+"="+strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
	}
	return env
}

func (c *ClaudeExecutor) run(ctx context.Context, sessionID, instruction, workDir string, opts Options) (*Result, error) {
	path, err := findExecutable(c.binaryName, c.knownPaths)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	args := buildArgs(sessionID, instruction, opts)
	cmd := exec.CommandContext(runCtx, path, args...) //nolint:gosec // G204: path from controlled lookup
	cmd.Dir = workDir
	cmd.Env = buildEnv(opts)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", domain.ErrExecutor, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", domain.ErrExecutor, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", domain.ErrExecutor, c.binaryName, err)
	}
	log.Debug(log.CatExec, "agent started", "pid", cmd.Process.Pid,
		"workDir", workDir, "resume", sessionID != "")

	// Drain both pipes concurrently so neither blocks the other.
	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stdout, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stderr, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	result.SessionID = extractSessionID(result.Stdout)

	// Context expiry wins over the exit status the kill produced.
	if runCtx.Err() != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.ExitCode = -1
			return result, fmt.Errorf("%w: agent exceeded %s", domain.ErrTimeout, opts.Timeout)
		}
		result.ExitCode = -1
		return result, fmt.Errorf("%w: agent run cancelled", domain.ErrCancelled)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Debug(log.CatExec, "agent exited nonzero", "code", result.ExitCode)
			return result, nil
		}
		return result, fmt.Errorf("%w: waiting for %s: %v", domain.ErrExecutor, c.binaryName, waitErr)
	}

	log.Debug(log.CatExec, "agent completed", "duration", result.Duration,
		"sessionID", result.SessionID)
	return result, nil
}

// extractSessionID pulls the session token out of the agent's JSON
// stdout. Absence is non-fatal; it only disables continuation.
func extractSessionID(stdout string) string {
	var payload struct {
		SessionID string `json:"session_id"`
		UUID      string `json:"uuid"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		return ""
	}
	if payload.SessionID != "" {
		return payload.SessionID
	}
	return payload.UUID
}
