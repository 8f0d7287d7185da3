package toolserver

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bashme-ai/bashme/pkg/config"
)

// The four inspection operations are pure over their inputs with respect to
// the filesystem and environment at call time, and read-only by contract.
// None of them fails upward: every failure folds into an empty result.

// ListDirectory returns the entry names directly inside path, sorted. An
// empty path means the current directory and a leading ~ is expanded. A
// path that does not exist or is not a directory yields an empty slice.
// It does not recurse.
func ListDirectory(path string) []string {
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(config.ExpandHome(path))
	if err != nil {
		return []string{}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// ManualPage fetches the manual page for a command with the pager disabled.
// Absent pages, man failures, and a missing man binary all yield "".
func ManualPage(ctx context.Context, commandName string) string {
	if strings.TrimSpace(commandName) == "" {
		return ""
	}

	// The -- stops dash-prefixed names from reaching man as options.
	cmd := exec.CommandContext(ctx, "man", "--", commandName)
	cmd.Env = append(os.Environ(), "MANPAGER=cat", "PAGER=cat", "MANWIDTH=80")

	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}

// ResolveHistoryFile picks the history file location: the configured
// override first, then $HISTFILE, then ~/.bash_history.
func ResolveHistoryFile(override string) string {
	if override != "" {
		return config.ExpandHome(override)
	}
	if env := os.Getenv("HISTFILE"); env != "" {
		return config.ExpandHome(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bash_history")
}

// RecentHistory returns up to the last n valid commands from the history
// file at path, oldest first. Blank lines and comment lines (leading #,
// bash timestamp markers included) are skipped; returned lines are
// whitespace-trimmed. n <= 0, a missing file, or no valid lines yield an
// empty slice.
func RecentHistory(path string, n int) []string {
	if n <= 0 || path == "" {
		return []string{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return []string{}
	}

	lines := strings.Split(string(data), "\n")
	commands := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(commands) < n; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		commands = append(commands, line)
	}
	slices.Reverse(commands)
	return commands
}

// EnvironmentSnapshot returns a disconnected copy of the process
// environment. Mutating the returned map never touches the live
// environment.
func EnvironmentSnapshot() map[string]string {
	environ := os.Environ()
	snapshot := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			snapshot[k] = v
		}
	}
	return snapshot
}
