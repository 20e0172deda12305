package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
)

var (
	forecastMinutes    int
	forecastConfidence string
	forecastTask       string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast <file>...",
	Short: "Publish a non-binding forecast of files you intend to touch",
	Long: `Publish a forecast of files this agent intends to touch soon.

Forecasts never block anyone. They feed the early-warning query:
'swarm forecast conflicts <file>...' shows who else plans to touch
the same files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		arb, err := getArbiter()
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would forecast %d files", len(args))
			return nil
		}

		fc, err := arb.Forecast(cmd.Context(), agentID, forecastTask, args,
			time.Duration(forecastMinutes)*time.Minute,
			models.ForecastConfidence(forecastConfidence))
		if err != nil {
			return err
		}
		ui.Success("Forecast %s published: %d files around %s",
			fc.ForecastID, len(fc.Files), fc.EstimatedTouchTime.Format(time.RFC3339))
		return nil
	},
}

var forecastConflictsCmd = &cobra.Command{
	Use:   "conflicts <file>...",
	Short: "Show other agents' forecasts overlapping these files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _, err := selfIdentity(cmd)
		if err != nil {
			return err
		}
		arb, err := getArbiter()
		if err != nil {
			return err
		}

		conflicts, err := arb.Conflicts(cmd.Context(), args, agentID)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			ui.Success("No forecast conflicts.")
			return nil
		}

		table := ui.Table([]string{"File", "Forecasted By", "Estimated", "Confidence"})
		for _, c := range conflicts {
			table.Append([]string{c.File, c.ForecastedBy, c.EstimatedTime.Format(time.RFC3339), string(c.Confidence)})
		}
		return table.Render()
	},
}

func init() {
	forecastCmd.Flags().IntVar(&forecastMinutes, "minutes", 30, "Estimated minutes until the files are touched")
	forecastCmd.Flags().StringVar(&forecastConfidence, "confidence", "", "Confidence: low, medium, high (default: medium)")
	forecastCmd.Flags().StringVar(&forecastTask, "task", "", "Task the forecast belongs to")
	forecastCmd.AddCommand(forecastConflictsCmd)
	rootCmd.AddCommand(forecastCmd)
}
