package agent

import (
	"encoding/json"
	"fmt"
)

// ShellSnapshot is the shell state captured at the moment the user asked
// for completions. CurrentCommand is what sits on the command line;
// everything else is advisory context the model may use or ignore.
type ShellSnapshot struct {
	CurrentCommand  string `json:"current_command"`
	SearchQuery     string `json:"search_query,omitempty"`
	CursorPosition  int    `json:"cursor_position"`
	WorkingDir      string `json:"working_dir"`
	HistoryFilePath string `json:"history_file_path"`
	SearchPath      string `json:"search_path"`
}

// UserMessage renders the snapshot as the request's single user message:
// a short lead-in plus the snapshot as a fenced JSON block, which is the
// shape the instruction prompt tells the model to expect.
func (s ShellSnapshot) UserMessage() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Plain string and int fields cannot fail to marshal; keep the
		// request alive if that ever changes.
		return fmt.Sprintf("Here is the current shell context:\n%+v", s)
	}
	return fmt.Sprintf("Here is the current shell context:\n```json\n%s\n```", data)
}
