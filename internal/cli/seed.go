package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetworks/punchd/internal/seeder"
	"github.com/fleetworks/punchd/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Push synthetic punches at a running instance",
	Long: `Generates fake terminal traffic mixing all three wire encodings
(extended ATTLOG, short ATTLOG, rtlog) and sends it to a running
instance. Useful for load checks and for populating a fresh journal.`,
	Example: `  punchd seed --count 500 --interval 10ms
  punchd seed --url http://staging:8081 --devices 10 --users 200`,
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, _ := cmd.Flags().GetString("url")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		devices, _ := cmd.Flags().GetInt("devices")
		users, _ := cmd.Flags().GetInt("users")

		runner := seeder.NewRunner(seeder.Config{
			BaseURL:  baseURL,
			Count:    count,
			Interval: interval,
			Devices:  devices,
			Users:    users,
		})

		output.Info("seeding %d pushes against %s", count, baseURL)
		res := runner.Run()
		if res.Failed > 0 {
			output.Warn("%d pushes failed", res.Failed)
		}
		output.Success("%d pushes sent", res.Sent)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("url", "http://localhost:8081", "punchd base URL")
	seedCmd.Flags().Int("count", 100, "number of pushes to send")
	seedCmd.Flags().Duration("interval", 50*time.Millisecond, "pause between pushes")
	seedCmd.Flags().Int("devices", 3, "distinct fake device serials")
	seedCmd.Flags().Int("users", 20, "distinct fake user PINs")
}
