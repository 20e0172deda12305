package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/output"
)

var orchestratorCmd = &cobra.Command{
	Use:     "orchestrator",
	Aliases: []string{"orch"},
	Short:   "Orchestrator election and heartbeat",
	Long: `Manage orchestrator leadership.

One agent at a time acts as orchestrator. Leadership is held by
heartbeat: an orchestrator silent past the election timeout can be
displaced by any agent that runs 'swarm orchestrator elect'.`,
}

var orchElectCmd = &cobra.Command{
	Use:   "elect",
	Short: "Attempt to become the orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, info, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		mgr, err := getElection()
		if err != nil {
			return err
		}

		res, err := mgr.Elect(cmd.Context(), agentID, info.DisplayName, info.PlatformTag)
		if err != nil {
			return err
		}
		if res.Won {
			ui.Success("Elected orchestrator as %s", info.DisplayName)
			return nil
		}
		ui.Info("Not elected. Current orchestrator: %s (heartbeat %s)",
			res.Leader.DisplayName, res.Leader.LastHeartbeat.Format(time.RFC3339))
		return nil
	},
}

var orchHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Renew this agent's orchestrator heartbeat",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		mgr, err := getElection()
		if err != nil {
			return err
		}

		res, err := mgr.Heartbeat(cmd.Context(), agentID)
		if err != nil {
			return err
		}
		if res.Renewed {
			ui.Success("Heartbeat renewed")
			return nil
		}
		if res.Leader != nil {
			ui.Warning("Not the orchestrator. Current leader: %s", res.Leader.DisplayName)
		} else {
			ui.Warning("No orchestrator record exists. Run 'swarm orchestrator elect'.")
		}
		return nil
	},
}

var orchResignCmd = &cobra.Command{
	Use:   "resign",
	Short: "Step down as orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		mgr, err := getElection()
		if err != nil {
			return err
		}

		resigned, err := mgr.Resign(cmd.Context(), agentID)
		if err != nil {
			return err
		}
		if resigned {
			ui.Success("Resigned orchestrator role")
		} else {
			ui.Info("Nothing to resign: this agent is not the orchestrator.")
		}
		return nil
	},
}

var orchInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current orchestrator and executor roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getElection()
		if err != nil {
			return err
		}

		rec, found, err := mgr.Info(cmd.Context())
		if err != nil {
			return err
		}
		if !found {
			ui.Info("No valid orchestrator. Run 'swarm orchestrator elect' to take the role.")
			return nil
		}

		fmt.Fprintf(ui.Out, "  Orchestrator: %s (%s)\n", output.Cyan(rec.DisplayName), rec.AgentID)
		fmt.Fprintf(ui.Out, "  Elected:      %s\n", rec.ElectedAt.Format(time.RFC3339))
		fmt.Fprintf(ui.Out, "  Heartbeat:    %s\n", rec.LastHeartbeat.Format(time.RFC3339))

		executors, err := mgr.Executors(cmd.Context())
		if err != nil {
			return err
		}
		if len(executors) == 0 {
			return nil
		}
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Executor", "Status", "Task", "File"})
		for _, e := range executors {
			table.Append([]string{e.DisplayName, output.StatusColor(string(e.Status)), e.CurrentTaskID, e.CurrentFile})
		}
		return table.Render()
	},
}

func init() {
	orchestratorCmd.AddCommand(orchElectCmd)
	orchestratorCmd.AddCommand(orchHeartbeatCmd)
	orchestratorCmd.AddCommand(orchResignCmd)
	orchestratorCmd.AddCommand(orchInfoCmd)
	rootCmd.AddCommand(orchestratorCmd)
}
