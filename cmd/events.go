package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	eventsSince string
	eventsTypes []string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Poll the shared event log",
	Long: `Poll the append-only event log.

Polling is the only delivery mechanism. Remember the timestamp of the
last event you saw and pass it with --since to avoid replays.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := getEventLog()
		if err != nil {
			return err
		}

		var since time.Time
		if eventsSince != "" {
			since, err = time.Parse(time.RFC3339, eventsSince)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp: %w", err)
			}
		}

		events, err := log.Poll(cmd.Context(), since, eventsTypes)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			ui.Info("No events.")
			return nil
		}

		table := ui.Table([]string{"Seq", "Timestamp", "Type", "Payload"})
		for _, ev := range events {
			payload, _ := json.Marshal(ev.Payload)
			table.Append([]string{
				fmt.Sprintf("%d", ev.Seq),
				ev.TS.Format(time.RFC3339),
				ev.Type,
				string(payload),
			})
		}
		return table.Render()
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <message>",
	Short: "Broadcast a message to the whole swarm",
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

		ev, err := log.Broadcast(cmd.Context(), agentID, args[0])
		if err != nil {
			return err
		}
		ui.Success("Broadcast %s sent", ev.EventID)
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "RFC3339 timestamp; only events strictly after it")
	eventsCmd.Flags().StringSliceVar(&eventsTypes, "type", nil, "Event type filter (repeatable)")
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(broadcastCmd)
}
