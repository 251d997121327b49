package cmd

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-payments/pkg/skills"
	"github.com/theapemachine/a2a-payments/pkg/tools"
)

var (
	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agent's skills as MCP tools over stdio",
		Long:  longMCP,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.NewMCPServer(
				projectName,
				"1.0.0",
				server.WithLogging(),
			)

			tools.Register(srv, skills.NewRegistry())

			return server.ServeStdio(srv)
		},
	}
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var longMCP = `
Serve the greeting, calculation, weather and translation skills as MCP tools
over stdio. Streaming and push notifications need a task and are only
available through the A2A endpoint.

Examples:
  a2a-payments mcp
`
