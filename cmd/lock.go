package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/output"
)

var (
	lockShared     bool
	lockTTLMinutes int
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Reserve and release file locks",
	Long: `Reserve files before editing them.

Exclusive reservations block everyone else; shared reservations
coexist but block exclusive ones. A conflict names the holder so you
can wait, pick another file, or escalate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockListRun(cmd)
	},
}

var lockReserveCmd = &cobra.Command{
	Use:   "reserve <path>",
	Short: "Reserve a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		locker, err := getLocker()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would reserve %s", args[0])
			return nil
		}

		ttl := time.Duration(lockTTLMinutes) * time.Minute
		res, err := locker.Reserve(cmd.Context(), args[0], agentID, !lockShared, ttl)
		if err != nil {
			return err
		}
		if !res.OK {
			ui.Warning("Conflict: %s is held by %s", args[0], res.Holder)
			return nil
		}
		ui.Success("Reserved %s", args[0])
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release <path>",
	Short: "Release a file reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		locker, err := getLocker()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would release %s", args[0])
			return nil
		}

		if err := locker.Release(cmd.Context(), args[0], agentID); err != nil {
			return err
		}
		ui.Success("Released %s", args[0])
		return nil
	},
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all valid reservations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockListRun(cmd)
	},
}

func init() {
	lockReserveCmd.Flags().BoolVar(&lockShared, "shared", false, "Take a shared (advisory) lock instead of exclusive")
	lockReserveCmd.Flags().IntVar(&lockTTLMinutes, "ttl", 0, "Lock TTL in minutes (0 = no expiry)")
	lockCmd.AddCommand(lockReserveCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	lockCmd.AddCommand(lockListCmd)
	rootCmd.AddCommand(lockCmd)
}

func lockListRun(cmd *cobra.Command) error {
	arb, err := getArbiter()
	if err != nil {
		return err
	}

	locks, err := arb.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(locks) == 0 {
		ui.Info("No files reserved.")
		return nil
	}

	table := ui.Table([]string{"Path", "Holder", "Mode", "Acquired", "TTL"})
	for _, l := range locks {
		mode := "shared"
		if l.Exclusive {
			mode = output.Yellow("exclusive")
		}
		ttl := "-"
		if l.TTL > 0 {
			ttl = l.TTL.String()
		}
		table.Append([]string{l.Path, l.Holder, mode, l.AcquiredAt.Format(time.RFC3339), ttl})
	}
	return table.Render()
}
