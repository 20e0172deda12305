package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for editing-agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This exposes the coordination core as tools an editing agent calls
natively: register, pulse, elect, reserve files, claim tasks, bid,
and urgent preemption. Configure in your agent with:

  {
    "mcpServers": {
      "swarm": { "command": "swarm", "args": ["mcp"] }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return mcp.NewServer(s).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
