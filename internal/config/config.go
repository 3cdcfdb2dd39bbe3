// Package config provides configuration types, defaults, and
// persistence for weave.
package config

import "time"

// PlannerConfig holds LLM planner configuration.
type PlannerConfig struct {
	// APIKey is the planner credential. Empty means the CLI layer reads
	// ANTHROPIC_AUTH_TOKEN; the core never touches the environment.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the planner endpoint (empty uses the default).
	BaseURL string `mapstructure:"base_url"`

	// Model is the model identifier for decomposition calls.
	Model string `mapstructure:"model"`

	// MaxTokens bounds the planner response.
	MaxTokens int `mapstructure:"max_tokens"`

	// TimeoutMs bounds the planner call wall-clock.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// ExecutorConfig holds coding-agent configuration.
type ExecutorConfig struct {
	// APIKey is the agent credential, propagated only via subprocess env.
	APIKey string `mapstructure:"api_key"`

	// BaseUrl overrides the agent's upstream endpoint.
	BaseURL string `mapstructure:"base_url"`

	// Model is passed through to the agent.
	Model string `mapstructure:"model"`

	// TimeoutMs is the per-invocation wall-clock limit.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// RepoConfig holds version-control configuration.
type RepoConfig struct {
	// DefaultBranch is the fallback base branch for story branches.
	DefaultBranch string `mapstructure:"default_branch"`

	// WorktreeBasePath is the parent directory for per-story worktrees.
	WorktreeBasePath string `mapstructure:"worktree_base_path"`
}

// StoreConfig holds persistent-store configuration.
type StoreConfig struct {
	// Connection is the SQLite database path.
	Connection string `mapstructure:"connection"`
}

// RecoverConfig holds crash-recovery configuration.
type RecoverConfig struct {
	// HeartbeatTTLMs is how stale an in-progress story's heartbeat may
	// be before startup recovery resets it to ready.
	HeartbeatTTLMs int `mapstructure:"heartbeat_ttl_ms"`
}

// TracingConfig holds trace exporter configuration.
type TracingConfig struct {
	// Enabled controls whether spans are recorded at all.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the backend: "file", "stdout", or "none".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the JSONL output for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// SampleRate is the fraction of traces to sample (default 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Config holds all configuration options for weave.
type Config struct {
	Planner  PlannerConfig  `mapstructure:"planner"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Repo     RepoConfig     `mapstructure:"repo"`
	Store    StoreConfig    `mapstructure:"store"`
	Recover  RecoverConfig  `mapstructure:"recover"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Planner: PlannerConfig{
			MaxTokens: 4096,
			TimeoutMs: 120_000,
		},
		Executor: ExecutorConfig{
			TimeoutMs: 600_000,
		},
		Repo: RepoConfig{
			DefaultBranch:    "main",
			WorktreeBasePath: "./worktrees",
		},
		Store: StoreConfig{
			Connection: ".weave/weave.db",
		},
		Recover: RecoverConfig{
			HeartbeatTTLMs: 300_000,
		},
		Tracing: TracingConfig{
			Exporter:   "file",
			FilePath:   ".weave/traces.jsonl",
			SampleRate: 1.0,
		},
	}
}

// PlannerTimeout returns the planner timeout as a duration.
func (c Config) PlannerTimeout() time.Duration {
	return time.Duration(c.Planner.TimeoutMs) * time.Millisecond
}

// ExecutorTimeout returns the executor timeout as a duration.
func (c Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutMs) * time.Millisecond
}

// HeartbeatTTL returns the recovery heartbeat threshold as a duration.
func (c Config) HeartbeatTTL() time.Duration {
	return time.Duration(c.Recover.HeartbeatTTLMs) * time.Millisecond
}
