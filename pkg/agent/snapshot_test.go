package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellSnapshot_UserMessageCarriesFencedJSON(t *testing.T) {
	msg := ShellSnapshot{
		CurrentCommand:  "git st",
		CursorPosition:  6,
		WorkingDir:      "/home/ada/project",
		HistoryFilePath: "/home/ada/.bash_history",
		SearchPath:      "/usr/bin:/bin",
	}.UserMessage()

	assert.True(t, strings.HasPrefix(msg, "Here is the current shell context:"), "got %q", msg)
	assert.Contains(t, msg, "```json")

	// The fenced block must round-trip back into the same snapshot.
	start := strings.Index(msg, "```json\n")
	end := strings.LastIndex(msg, "\n```")
	require.Greater(t, end, start)

	var decoded ShellSnapshot
	require.NoError(t, json.Unmarshal([]byte(msg[start+len("```json\n"):end]), &decoded))
	assert.Equal(t, "git st", decoded.CurrentCommand)
	assert.Equal(t, 6, decoded.CursorPosition)
	assert.Equal(t, "/home/ada/project", decoded.WorkingDir)
}

func TestShellSnapshot_SearchQueryOmittedWhenEmpty(t *testing.T) {
	plain := ShellSnapshot{CurrentCommand: "ls"}.UserMessage()
	assert.NotContains(t, plain, "search_query")

	searching := ShellSnapshot{CurrentCommand: "", SearchQuery: "docker"}.UserMessage()
	assert.Contains(t, searching, `"search_query": "docker"`)
}
