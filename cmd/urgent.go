package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/output"
)

var (
	urgentReason string
	urgentFiles  []string
	urgentTaskID string
)

var urgentCmd = &cobra.Command{
	Use:   "urgent",
	Short: "Urgent preemption of agents touching affected files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return urgentActiveRun(cmd)
	},
}

var urgentTriggerCmd = &cobra.Command{
	Use:   "trigger <title>",
	Short: "Trigger an urgent interrupt",
	Long: `Trigger an urgent interrupt over a set of files.

Agents whose current pulse file overlaps --file are snapshotted as
preempted; the snapshot never changes after creation. The interrupt
is also broadcast on the event log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		ctrl, err := getPreempt()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would trigger urgent interrupt %q over %d files", args[0], len(urgentFiles))
			return nil
		}

		ut, err := ctrl.Trigger(cmd.Context(), urgentTaskID, args[0], urgentReason, agentID, urgentFiles)
		if err != nil {
			return err
		}
		ui.Success("Urgent interrupt %s created", ut.UrgentID)
		if len(ut.PreemptedAgents) == 0 {
			ui.Info("No agents are currently touching the affected files.")
		} else {
			ui.Warning("Preempted agents: %s", strings.Join(ut.PreemptedAgents, ", "))
		}
		return nil
	},
}

var urgentResolveCmd = &cobra.Command{
	Use:   "resolve <urgent-id>",
	Short: "Resolve an urgent interrupt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := getPreempt()
		if err != nil {
			return err
		}

		ut, err := ctrl.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ui.Success("Urgent interrupt %s resolved", ut.UrgentID)
		return nil
	},
}

var urgentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all urgent interrupts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := getPreempt()
		if err != nil {
			return err
		}

		all, err := ctrl.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			ui.Info("No urgent interrupts recorded.")
			return nil
		}

		table := ui.Table([]string{"ID", "Title", "Status", "Initiator", "Preempted", "Created"})
		for _, ut := range all {
			table.Append([]string{
				ut.UrgentID,
				ut.Title,
				output.StatusColor(string(ut.Status)),
				ut.Initiator,
				strings.Join(ut.PreemptedAgents, ","),
				ut.CreatedAt.Format(time.RFC3339),
			})
		}
		return table.Render()
	},
}

func init() {
	urgentTriggerCmd.Flags().StringSliceVar(&urgentFiles, "file", nil, "Affected file (repeatable)")
	urgentTriggerCmd.Flags().StringVar(&urgentReason, "reason", "", "Why the interrupt is urgent")
	urgentTriggerCmd.Flags().StringVar(&urgentTaskID, "task", "", "Related task")
	_ = urgentTriggerCmd.MarkFlagRequired("file")
	urgentCmd.AddCommand(urgentTriggerCmd)
	urgentCmd.AddCommand(urgentResolveCmd)
	urgentCmd.AddCommand(urgentListCmd)
	rootCmd.AddCommand(urgentCmd)
}

func urgentActiveRun(cmd *cobra.Command) error {
	ctrl, err := getPreempt()
	if err != nil {
		return err
	}

	ut, found, err := ctrl.Active(cmd.Context())
	if err != nil {
		return err
	}
	if !found {
		ui.Success("No active urgent interrupt.")
		return nil
	}

	fmt.Fprintf(ui.Out, "  Urgent:    %s (%s)\n", output.Red(ut.Title), ut.UrgentID)
	fmt.Fprintf(ui.Out, "  Reason:    %s\n", ut.Reason)
	fmt.Fprintf(ui.Out, "  Initiator: %s\n", ut.Initiator)
	fmt.Fprintf(ui.Out, "  Files:     %s\n", strings.Join(ut.AffectedFiles, ", "))
	fmt.Fprintf(ui.Out, "  Preempted: %s\n", strings.Join(ut.PreemptedAgents, ", "))
	fmt.Fprintf(ui.Out, "  Created:   %s\n", ut.CreatedAt.Format(time.RFC3339))
	return nil
}
