package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bashme-ai/bashme/pkg/agent"
	"github.com/bashme-ai/bashme/pkg/gateway"
)

func newCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Request completions from the running daemon",
		Long: "Posts the current shell state to the daemon and prints one " +
			"suggestion per line. Shell widgets call this on demand.",
		RunE: runComplete,
	}
	cmd.Flags().StringP("command", "c", "", "Current command line")
	cmd.Flags().Int("cursor", -1, "Cursor position (defaults to end of line)")
	cmd.Flags().StringP("query", "q", "", "History search query")
	cmd.Flags().String("dir", "", "Working directory (defaults to the current directory)")
	cmd.Flags().String("history-file", "", "Shell history file path")
	cmd.Flags().String("session", "", "Session id; a newer request for the same id cancels the older one")
	cmd.Flags().String("host", "", "Daemon host (defaults to the configured host)")
	cmd.Flags().Int("port", 0, "Daemon port (defaults to the configured port)")
	cmd.Flags().Int("timeout", 30000, "Request timeout in milliseconds")
	cmd.Flags().String("token", "", "Bearer token (defaults to the configured auth token)")
	return cmd
}

func runComplete(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	command, _ := flags.GetString("command")
	cursor, _ := flags.GetInt("cursor")
	query, _ := flags.GetString("query")
	dir, _ := flags.GetString("dir")
	historyFile, _ := flags.GetString("history-file")
	sessionID, _ := flags.GetString("session")
	host, _ := flags.GetString("host")
	port, _ := flags.GetInt("port")
	timeoutMS, _ := flags.GetInt("timeout")
	token, _ := flags.GetString("token")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.Daemon.Host
	}
	if port <= 0 {
		port = cfg.Daemon.Port
	}
	if token == "" {
		token = cfg.Daemon.AuthToken
	}
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	if historyFile == "" {
		historyFile = cfg.HistoryFilePath()
	}

	payload, err := buildCompleteRequest(command, cursor, query, dir, historyFile, os.Getenv("PATH"), sessionID)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	url := fmt.Sprintf("http://%s/generate", net.JoinHostPort(host, strconv.Itoa(port)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == 499:
		// Superseded by a newer request for the same session.
		return nil
	default:
		var errResp gateway.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("daemon error (%d)", resp.StatusCode)
	}

	var out gateway.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	for _, suggestion := range out.Suggestions {
		fmt.Println(suggestion)
	}
	return nil
}

// buildCompleteRequest assembles the /generate body. A cursor outside
// the command line snaps to its end.
func buildCompleteRequest(command string, cursor int, query, dir, historyFile, searchPath, sessionID string) ([]byte, error) {
	if cursor < 0 || cursor > len(command) {
		cursor = len(command)
	}
	request := struct {
		agent.ShellSnapshot
		SessionID string `json:"session_id,omitempty"`
	}{
		ShellSnapshot: agent.ShellSnapshot{
			CurrentCommand:  command,
			SearchQuery:     query,
			CursorPosition:  cursor,
			WorkingDir:      dir,
			HistoryFilePath: historyFile,
			SearchPath:      searchPath,
		},
		SessionID: sessionID,
	}
	return json.Marshal(request)
}
