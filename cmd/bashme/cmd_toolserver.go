package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/bashme-ai/bashme/pkg/toolserver"
)

func newToolserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolserver",
		Short: "Serve the shell inspection tools over stdio",
		Long: "Runs the tool registry the daemon spawns for itself. " +
			"Mostly useful standalone for poking at the tools with an MCP inspector.",
		RunE: runToolserver,
	}
	cmd.Flags().String("history-file", "", "Shell history file consulted by recent_history")
	return cmd
}

func runToolserver(cmd *cobra.Command, _ []string) error {
	historyFile, _ := cmd.Flags().GetString("history-file")
	return toolserver.New(historyFile).Run(cmd.Context(), &mcp.StdioTransport{})
}
