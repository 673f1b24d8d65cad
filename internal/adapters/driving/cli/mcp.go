package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/homeqa/internal/adapters/driving/mcp"
	"github.com/custodia-labs/homeqa/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can ask
questions about, and search, your synced messages.

By default the server communicates over stdio using JSON-RPC. Use --port
to serve streamable HTTP instead.

Examples:
  # Stdio mode (for desktop assistants)
  homeqa mcp

  # HTTP mode (for MCP Inspector, remote access)
  homeqa mcp --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "homeqa": {
        "command": "/path/to/homeqa",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	server, err := mcp.NewServer(&mcp.Ports{Answers: answerService, Sync: syncOrchestrator})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	// Stdout carries the protocol.
	logger.SetOutput(cmd.ErrOrStderr())
	return server.Run(cmd.Context())
}
