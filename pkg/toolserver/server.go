package toolserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bashme-ai/bashme/pkg/logger"
)

// Server is the tool registry: an MCP server hosting the four inspection
// tools and the instruction prompt. The daemon normally spawns it as a
// subprocess over stdio, but any MCP transport works.
type Server struct {
	historyFile string
	mcp         *mcp.Server
}

type ListDirectoryInput struct {
	Path string `json:"path" jsonschema:"path of the directory to list"`
}

type ListDirectoryOutput struct {
	Entries []string `json:"entries"`
}

type ManualPageInput struct {
	CommandName string `json:"command_name" jsonschema:"name of the command whose manual page to fetch"`
}

type ManualPageOutput struct {
	Content string `json:"content"`
}

type RecentHistoryInput struct {
	N int `json:"n" jsonschema:"how many recent commands to return"`
}

type RecentHistoryOutput struct {
	Commands []string `json:"commands"`
}

type EnvironmentSnapshotInput struct{}

// New builds the registry server. historyFile overrides the history
// location for recent_history; empty means resolve from the environment.
func New(historyFile string) *Server {
	s := &Server{historyFile: historyFile}

	server := mcp.NewServer(&mcp.Implementation{Name: "bashme-toolserver", Version: "v0.1.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_directory",
		Description: "List the files and directories directly inside a path. Does not recurse. Returns an empty list if the path does not exist or is not a directory.",
	}, s.handleListDirectory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "manual_page",
		Description: "Fetch the manual page for a command, pager disabled. Returns an empty string if the page is absent or man is unavailable.",
	}, s.handleManualPage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_history",
		Description: "Return up to the last n valid commands from the shell history file, oldest first. Blank lines and comment lines are skipped.",
	}, s.handleRecentHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "environment_snapshot",
		Description: "Return a snapshot of the current environment variables as a name-to-value map.",
	}, s.handleEnvironmentSnapshot)

	server.AddPrompt(&mcp.Prompt{
		Name:        PromptName,
		Description: "Instruction prompt for the completion engine.",
	}, s.handlePrompt)

	s.mcp = server
	return s
}

// Run serves the registry on the given transport until the context is
// cancelled or the peer disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	logger.InfoCF("toolserver", "Tool registry serving", map[string]any{
		"history_file": s.historyFile,
	})
	return s.mcp.Run(ctx, transport)
}

func (s *Server) handleListDirectory(_ context.Context, _ *mcp.CallToolRequest, in ListDirectoryInput) (*mcp.CallToolResult, ListDirectoryOutput, error) {
	entries := ListDirectory(in.Path)
	logger.DebugCF("toolserver", "list_directory", map[string]any{
		"path":    in.Path,
		"entries": len(entries),
	})
	return textResult(marshalJSON(entries)), ListDirectoryOutput{Entries: entries}, nil
}

func (s *Server) handleManualPage(ctx context.Context, _ *mcp.CallToolRequest, in ManualPageInput) (*mcp.CallToolResult, ManualPageOutput, error) {
	content := ManualPage(ctx, in.CommandName)
	logger.DebugCF("toolserver", "manual_page", map[string]any{
		"command_name": in.CommandName,
		"length":       len(content),
	})
	return textResult(content), ManualPageOutput{Content: content}, nil
}

func (s *Server) handleRecentHistory(_ context.Context, _ *mcp.CallToolRequest, in RecentHistoryInput) (*mcp.CallToolResult, RecentHistoryOutput, error) {
	commands := RecentHistory(ResolveHistoryFile(s.historyFile), in.N)
	logger.DebugCF("toolserver", "recent_history", map[string]any{
		"n":        in.N,
		"commands": len(commands),
	})
	return textResult(marshalJSON(commands)), RecentHistoryOutput{Commands: commands}, nil
}

func (s *Server) handleEnvironmentSnapshot(_ context.Context, _ *mcp.CallToolRequest, _ EnvironmentSnapshotInput) (*mcp.CallToolResult, map[string]string, error) {
	snapshot := EnvironmentSnapshot()
	logger.DebugCF("toolserver", "environment_snapshot", map[string]any{
		"variables": len(snapshot),
	})
	return textResult(marshalJSON(snapshot)), snapshot, nil
}

func (s *Server) handlePrompt(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Instruction prompt for the completion engine.",
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: CompletionRules}},
		},
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
