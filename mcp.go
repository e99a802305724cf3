package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server over stdin/stdout. Logs go to stderr since stdout
carries the protocol.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil,
	)
	tools.RegisterTextTools(server)
	tools.RegisterTableTools(server, a.pages)
	tools.RegisterNoteTools(server, a.notes)
	a.logger.Info("mcp server ready", zap.Int("tools", 6))

	return server.Run(cmd.Context(), &mcp.StdioTransport{})
}
