package cli

import (
	"github.com/spf13/cobra"

	"ChannelManager/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dedup and queue tools over MCP stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout so agents can call
channel_list, dedup_check, queue_list, queue_add and queue_validate directly.

Logs go to stderr. Example client configuration:
  {
    "mcpServers": {
      "tgcm": {
        "command": "/path/to/tgcm",
        "args": ["--workspace", "/path/to/workspace", "mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	server, err := mcpserver.NewServer(mcpserver.Services{
		Channels: a.Channels,
		Dedup:    a.Dedup,
		Queue:    a.Queue,
	})
	if err != nil {
		return err
	}
	a.Logger.Info("mcp server starting", "version", mcpserver.Version)
	return server.Run(cmd.Context())
}
