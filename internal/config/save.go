package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultFileContent is the commented default config written on first run.
const defaultFileContent = `# weave configuration
planner:
  # api_key:            # prefer the ANTHROPIC_AUTH_TOKEN env var
  # base_url:
  # model: claude-sonnet-4-5
  max_tokens: 4096
  timeout_ms: 120000

executor:
  # model:
  timeout_ms: 600000

repo:
  default_branch: main
  worktree_base_path: ./worktrees

store:
  connection: .weave/weave.db

recover:
  heartbeat_ttl_ms: 300000

tracing:
  enabled: false
  exporter: file
  file_path: .weave/traces.jsonl
  sample_rate: 1.0
`

// WriteDefaultConfig writes the commented default configuration to path,
// creating parent directories as needed. Fails if the file exists.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Sanity-check the template stays parseable before writing it out.
	var probe map[string]any
	if err := yaml.Unmarshal([]byte(defaultFileContent), &probe); err != nil {
		return fmt.Errorf("default config template invalid: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultFileContent), 0644); err != nil { //nolint:gosec // G306: config file is not sensitive
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
