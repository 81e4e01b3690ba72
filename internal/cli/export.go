package cli

import (
	"time"

	"github.com/spf13/cobra"

	"divergence-watch/internal/app"
)

var (
	exportRange     string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportBucket    time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export aggregated divergence buckets as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Range:       exportRange,
			PNGPath:     exportPNGPath,
			CSVPath:     exportCSVPath,
			MaxPoints:   exportMaxPoints,
			BucketWidth: exportBucket,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRange, "range", "all", "Time range: 1h, 24h, 7d, 30d, or all")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().DurationVar(&exportBucket, "bucket", 0, "Bucket width (defaults to config)")
}
