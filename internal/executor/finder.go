package executor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// knownClaudePaths are checked, in order, before falling back to PATH.
// {name} is replaced with the binary name (.exe appended on Windows).
var knownClaudePaths = []string{
	"~/.claude/local/{name}",
	"~/.claude/{name}",
}

// findExecutable locates the agent binary: known install paths first,
// then PATH lookup.
func findExecutable(name string, knownPaths []string) (string, error) {
	binary := name
	if runtime.GOOS == "windows" && !strings.HasSuffix(binary, ".exe") {
		binary += ".exe"
	}

	home, homeErr := os.UserHomeDir()
	for _, tmpl := range knownPaths {
		candidate := strings.ReplaceAll(tmpl, "{name}", binary)
		if strings.HasPrefix(candidate, "~/") {
			if homeErr != nil {
				continue
			}
			candidate = filepath.Join(home, candidate[2:])
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found in known paths or PATH", domain.ErrExecutor, name)
	}
	return path, nil
}
