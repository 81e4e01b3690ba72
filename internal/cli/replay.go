package cli

import (
	"github.com/spf13/cobra"

	"divergence-watch/internal/app"
)

var (
	replayRange string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run event detection over the stored series",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReplayOptions{
			Range: replayRange,
		}

		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayRange, "range", "all", "Time range: 1h, 24h, 7d, 30d, or all")
}
