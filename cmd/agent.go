package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage this agent's swarm identity",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this agent with the swarm",
	Long: `Register this agent with the swarm.

The agent ID is derived from hostname and username, so re-running on
the same machine keeps the same identity and display name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, err := getRegistrar()
		if err != nil {
			return err
		}
		info, err := reg.Register(cmd.Context())
		if err != nil {
			return err
		}
		ui.Success("Registered as %s (%s)", info.DisplayName, info.AgentID)
		return nil
	},
}

var agentWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show this agent's identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, err := getRegistrar()
		if err != nil {
			return err
		}
		info, found, err := reg.Whoami(cmd.Context())
		if err != nil {
			return err
		}
		if !found {
			ui.Info("Not registered. Run 'swarm agent register' to join the swarm.")
			return nil
		}

		fmt.Fprintf(ui.Out, "  Name:      %s\n", info.DisplayName)
		fmt.Fprintf(ui.Out, "  Agent ID:  %s\n", info.AgentID)
		fmt.Fprintf(ui.Out, "  Host:      %s\n", info.Hostname)
		fmt.Fprintf(ui.Out, "  Platform:  %s\n", info.PlatformTag)
		fmt.Fprintf(ui.Out, "  Last seen: %s\n", info.LastSeen.Format(time.RFC3339))
		return nil
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		agents, err := s.ListIdentities(cmd.Context())
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			ui.Info("No agents registered.")
			return nil
		}

		table := ui.Table([]string{"Name", "Agent ID", "Host", "Last Seen"})
		for _, a := range agents {
			table.Append([]string{a.DisplayName, a.AgentID, a.Hostname, a.LastSeen.Format(time.RFC3339)})
		}
		return table.Render()
	},
}

func init() {
	agentCmd.AddCommand(agentRegisterCmd)
	agentCmd.AddCommand(agentWhoamiCmd)
	agentCmd.AddCommand(agentListCmd)
	rootCmd.AddCommand(agentCmd)
}
