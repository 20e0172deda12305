package cmd

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/output"
)

var (
	pulseBranch string
	pulseFile   string
	pulseTask   string
	pulseStatus string
)

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Show the swarm pulse map",
	Long: `Show the shared pulse map: every agent's last reported branch,
file, task, and status.

Use 'swarm pulse update' periodically while working; agents silent
past the liveness threshold are treated as dead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pulseShowRun(cmd)
	},
}

var pulseUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Publish this agent's pulse entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, info, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		tracker, _, err := getTracker()
		if err != nil {
			return err
		}

		entry := models.PulseEntry{
			AgentID:       agentID,
			DisplayName:   info.DisplayName,
			PlatformTag:   info.PlatformTag,
			Hostname:      info.Hostname,
			Branch:        pulseBranch,
			CurrentFile:   pulseFile,
			CurrentTaskID: pulseTask,
			Status:        models.AgentStatus(pulseStatus),
		}
		if err := tracker.Update(cmd.Context(), entry); err != nil {
			return err
		}
		ui.Success("Pulse updated for %s", info.DisplayName)
		return nil
	},
}

func init() {
	pulseUpdateCmd.Flags().StringVar(&pulseBranch, "branch", "", "Branch currently checked out")
	pulseUpdateCmd.Flags().StringVar(&pulseFile, "file", "", "File currently being edited")
	pulseUpdateCmd.Flags().StringVar(&pulseTask, "task", "", "Task currently claimed")
	pulseUpdateCmd.Flags().StringVar(&pulseStatus, "status", "", "Agent status: active, idle, paused, offline")
	pulseCmd.AddCommand(pulseUpdateCmd)
	rootCmd.AddCommand(pulseCmd)
}

func pulseShowRun(cmd *cobra.Command) error {
	tracker, _, err := getTracker()
	if err != nil {
		return err
	}

	snapshot, err := tracker.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		ui.Info("Pulse map is empty. No agents have reported yet.")
		return nil
	}

	entries := make([]models.PulseEntry, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DisplayName < entries[j].DisplayName
	})

	table := ui.Table([]string{"Agent", "Status", "Branch", "File", "Task", "Updated"})
	for _, e := range entries {
		table.Append([]string{
			e.DisplayName,
			output.StatusColor(string(e.Status)),
			e.Branch,
			e.CurrentFile,
			e.CurrentTaskID,
			e.LastUpdate.Format(time.RFC3339),
		})
	}
	return table.Render()
}
