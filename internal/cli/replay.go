package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetworks/punchd/internal/capture"
	"github.com/fleetworks/punchd/internal/config"
	"github.com/fleetworks/punchd/internal/journal"
	"github.com/fleetworks/punchd/internal/replay"
	"github.com/fleetworks/punchd/internal/service"
	"github.com/fleetworks/punchd/pkg/logging"
	"github.com/fleetworks/punchd/pkg/output"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-ingest previously captured raw requests",
	Long: `Walks the raw-capture directory in arrival order and feeds every
ATTLOG-relevant capture back through the ingestion pipeline. Run it
against a stopped instance's data directory after a parser fix to
recover events the old parser dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
		logging.SetDefault(logger)

		captures, err := capture.NewStore(cfg.Data.RawDir())
		if err != nil {
			return fmt.Errorf("open capture store: %w", err)
		}
		j, err := journal.Open(journal.Config{
			RecordPath:  cfg.Data.RecordPath(),
			TabularPath: cfg.Data.TabularPath(),
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		coordinator := service.New(captures, j, nil, logger.Logger)
		res, err := replay.Run(context.Background(), captures, coordinator)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}

		output.Success("replayed %d captures (%d events journaled, %d skipped)",
			res.Replayed, res.Events, res.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
