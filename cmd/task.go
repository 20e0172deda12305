package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/output"
)

var (
	taskDescription  string
	taskCapabilities []string
	taskStatusFilter string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the shared task pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun(cmd)
	},
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task and announce it for bidding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		log, err := getEventLog()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would create task %q", args[0])
			return nil
		}

		task := &models.Task{
			Title:                args[0],
			Description:          taskDescription,
			RequiredCapabilities: taskCapabilities,
		}
		if err := s.CreateTask(cmd.Context(), task); err != nil {
			return err
		}
		if _, err := log.AnnounceTask(cmd.Context(), task.ID, task.Title, task.RequiredCapabilities); err != nil {
			return err
		}
		ui.Success("Task %s created and announced", task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun(cmd)
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Atomically claim an open task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		claimer, err := getClaimer()
		if err != nil {
			return err
		}

		res, err := claimer.ClaimTask(cmd.Context(), args[0], agentID)
		if err != nil {
			return err
		}
		if !res.OK {
			ui.Warning("Claim refused: task is held by %s", res.ClaimedBy)
			return nil
		}
		ui.Success("Claimed task %s", args[0])
		return nil
	},
}

var taskReleaseCmd = &cobra.Command{
	Use:   "release <task-id>",
	Short: "Release a claimed task back to the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		claimer, err := getClaimer()
		if err != nil {
			return err
		}

		if err := claimer.ReleaseTask(cmd.Context(), args[0], agentID); err != nil {
			return err
		}
		ui.Success("Released task %s", args[0])
		return nil
	},
}

var taskBidCmd = &cobra.Command{
	Use:   "bid <task-id>",
	Short: "Bid on an announced task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		log, err := getEventLog()
		if err != nil {
			return err
		}

		if _, err := log.Bid(cmd.Context(), args[0], agentID, taskCapabilities); err != nil {
			return err
		}
		ui.Success("Bid placed on task %s", args[0])
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskDescription, "description", "", "Task description")
	taskCreateCmd.Flags().StringSliceVar(&taskCapabilities, "capabilities", nil, "Required capabilities")
	taskBidCmd.Flags().StringSliceVar(&taskCapabilities, "capabilities", nil, "Capabilities offered")
	taskListCmd.Flags().StringVar(&taskStatusFilter, "status", "", "Status filter: open, claimed, done")
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskClaimCmd)
	taskCmd.AddCommand(taskReleaseCmd)
	taskCmd.AddCommand(taskBidCmd)
	rootCmd.AddCommand(taskCmd)
}

func taskListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	tasks, err := s.ListTasks(cmd.Context(), models.TaskStatus(taskStatusFilter))
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		ui.Info("No tasks. Use 'swarm task create <title>' to add one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Assignee", "Capabilities"})
	for _, t := range tasks {
		table.Append([]string{
			t.ID,
			t.Title,
			output.StatusColor(string(t.Status)),
			t.Assignee,
			strings.Join(t.RequiredCapabilities, ","),
		})
	}
	return table.Render()
}
