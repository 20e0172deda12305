package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbdrAbdr/swarm-mcp/internal/remote"
)

var arbiterCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Talk to a remote arbiter service",
	Long: `Inspect and control a remote arbiter, the optional centralized
backend for claim and lock traffic. Set arbiter.url in the config
file or SWARM_ARBITER_URL in the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return arbiterStateRun(cmd)
	},
}

var arbiterStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show arbiter leader and authorized agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return arbiterStateRun(cmd)
	},
}

var arbiterStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show arbiter counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := arbiterClient()
		if err != nil {
			return err
		}
		stats, err := client.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(ui.Out, "Agents:  %d\n", stats.AgentCount)
		fmt.Fprintf(ui.Out, "Tasks:   %d\n", stats.TaskCount)
		fmt.Fprintf(ui.Out, "Stopped: %v\n", stats.Stopped)
		return nil
	},
}

var arbiterStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Pause arbiter claim processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := arbiterClient()
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would stop arbiter claim processing")
			return nil
		}
		stopped, err := client.Stop(cmd.Context())
		if err != nil {
			return err
		}
		if !stopped {
			ui.Warning("Arbiter still reports running")
			return nil
		}
		ui.Success("Arbiter stopped")
		return nil
	},
}

var arbiterResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume arbiter claim processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := arbiterClient()
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would resume arbiter claim processing")
			return nil
		}
		stopped, err := client.Resume(cmd.Context())
		if err != nil {
			return err
		}
		if stopped {
			ui.Warning("Arbiter still reports stopped")
			return nil
		}
		ui.Success("Arbiter resumed")
		return nil
	},
}

func arbiterStateRun(cmd *cobra.Command) error {
	client, err := arbiterClient()
	if err != nil {
		return err
	}
	state, err := client.State(cmd.Context())
	if err != nil {
		return err
	}
	if state.Leader == "" {
		fmt.Fprintln(ui.Out, "Leader: (none)")
	} else {
		fmt.Fprintf(ui.Out, "Leader: %s\n", state.Leader)
	}
	if len(state.AuthorizedMCPs) == 0 {
		fmt.Fprintln(ui.Out, "Authorized agents: (none)")
		return nil
	}
	fmt.Fprintln(ui.Out, "Authorized agents:")
	for _, id := range state.AuthorizedMCPs {
		fmt.Fprintf(ui.Out, "  %s\n", id)
	}
	return nil
}

func arbiterClient() (*remote.Client, error) {
	url := viper.GetString("arbiter.url")
	if url == "" {
		return nil, fmt.Errorf("no arbiter configured: set arbiter.url or SWARM_ARBITER_URL")
	}
	var logger *slog.Logger
	if verbose {
		logger = slog.Default()
	}
	return remote.NewClient(url, logger), nil
}

func init() {
	rootCmd.AddCommand(arbiterCmd)
	arbiterCmd.AddCommand(arbiterStateCmd)
	arbiterCmd.AddCommand(arbiterStatsCmd)
	arbiterCmd.AddCommand(arbiterStopCmd)
	arbiterCmd.AddCommand(arbiterResumeCmd)
}
