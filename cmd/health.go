package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/output"
)

var (
	healthThresholdMinutes int
	reassignTo             string
	reassignReason         string
)

var healthCmd = &cobra.Command{
	Use:   "health [agent]",
	Short: "Check agent liveness",
	Long: `Check one agent's liveness, or show the whole-swarm summary.

An agent counts as dead once its pulse entry is older than the
liveness threshold, or immediately if it reported status offline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return healthCheckRun(cmd, args[0])
		}
		return healthSummaryRun(cmd)
	},
}

var healthDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List agents past the liveness threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor, _, err := getMonitor()
		if err != nil {
			return err
		}

		report, err := monitor.ListDeadAgents(cmd.Context(), threshold())
		if err != nil {
			return err
		}
		if report.DeadCount == 0 {
			ui.Success("All %d agents alive.", report.AliveCount)
			return nil
		}

		ui.Warning("%d dead, %d alive", report.DeadCount, report.AliveCount)
		table := ui.Table([]string{"Agent", "Last Seen", "Minutes Ago", "Task"})
		for _, h := range report.DeadAgents {
			name := h.DisplayName
			if name == "" {
				name = h.AgentID
			}
			table.Append([]string{name, h.LastSeen, fmt.Sprintf("%d", h.MinutesAgo), h.CurrentTask})
		}
		return table.Render()
	},
}

var healthReassignCmd = &cobra.Command{
	Use:   "reassign <task-id> <from-agent>",
	Short: "Reassign a dead agent's task",
	Long: `Reassign a task away from a dead agent.

Refused while the source agent is still alive. Omit --to to return
the task to the open pool.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor, _, err := getMonitor()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would reassign task %s from %s to %q", args[0], args[1], reassignTo)
			return nil
		}

		res, err := monitor.ForceReassign(cmd.Context(), args[0], args[1], reassignTo, reassignReason, threshold())
		if err != nil {
			return err
		}
		if !res.Reassigned {
			ui.Warning("Refused: %s", res.Reason)
			return nil
		}
		if res.NewAssignee == "" {
			ui.Success("Task %s returned to the open pool", args[0])
		} else {
			ui.Success("Task %s reassigned to %s", args[0], res.NewAssignee)
		}
		return nil
	},
}

func init() {
	healthCmd.PersistentFlags().IntVar(&healthThresholdMinutes, "threshold", 0, "Liveness threshold in minutes (default from config)")
	healthReassignCmd.Flags().StringVar(&reassignTo, "to", "", "New assignee (empty returns the task to open)")
	healthReassignCmd.Flags().StringVar(&reassignReason, "reason", "", "Why the task is being reassigned")
	healthCmd.AddCommand(healthDeadCmd)
	healthCmd.AddCommand(healthReassignCmd)
	rootCmd.AddCommand(healthCmd)
}

// threshold resolves the liveness threshold from the flag or config.
func threshold() time.Duration {
	if healthThresholdMinutes > 0 {
		return time.Duration(healthThresholdMinutes) * time.Minute
	}
	return livenessThreshold()
}

func healthCheckRun(cmd *cobra.Command, agent string) error {
	monitor, _, err := getMonitor()
	if err != nil {
		return err
	}

	h, err := monitor.CheckHealth(cmd.Context(), agent, threshold())
	if err != nil {
		return err
	}

	name := h.DisplayName
	if name == "" {
		name = h.AgentID
	}
	fmt.Fprintf(ui.Out, "  Agent:     %s\n", name)
	fmt.Fprintf(ui.Out, "  Liveness:  %s\n", output.AliveColor(h.Alive))
	fmt.Fprintf(ui.Out, "  Last seen: %s", h.LastSeen)
	if h.LastSeen != "never" {
		fmt.Fprintf(ui.Out, " (%dm ago)", h.MinutesAgo)
	}
	fmt.Fprintln(ui.Out)
	if h.CurrentTask != "" {
		fmt.Fprintf(ui.Out, "  Task:      %s\n", h.CurrentTask)
	}
	return nil
}

func healthSummaryRun(cmd *cobra.Command) error {
	monitor, _, err := getMonitor()
	if err != nil {
		return err
	}

	sum, err := monitor.SwarmSummary(cmd.Context(), threshold())
	if err != nil {
		return err
	}
	if sum.TotalAgents == 0 {
		ui.Info("No agents in the pulse map.")
		return nil
	}

	fmt.Fprintf(ui.Out, "  Agents:  %d total, %d alive, %d dead\n", sum.TotalAgents, sum.AliveAgents, sum.DeadAgents)
	fmt.Fprintf(ui.Out, "  Working: %d active, %d idle\n", sum.ActiveAgents, sum.IdleAgents)
	fmt.Fprintf(ui.Out, "  Health:  %s\n", output.HealthColor(sum.HealthPercentage))
	return nil
}
