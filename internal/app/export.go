package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"divergence-watch/internal/aggregate"
)

// Export aggregates the recorded series and renders it as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	rng, err := aggregate.ParseRange(opts.Range)
	if err != nil {
		return err
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	width := opts.BucketWidth
	if width <= 0 {
		width = a.Config.Export.BucketWidth
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage backend disabled; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.Load(ctx)
	if err != nil {
		return err
	}

	buckets := aggregate.Aggregate(samples, rng, width, time.Now().UTC())
	if len(buckets) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	buckets = downsampleBuckets(buckets, opts.MaxPoints)
	a.Logger.Info().Int("samples", len(samples)).Int("buckets", len(buckets)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := a.writeBucketsCSV(opts.CSVPath, buckets); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeBucketsPNG(opts.PNGPath, buckets); err != nil {
			return err
		}
	}

	return nil
}

func downsampleBuckets(buckets []aggregate.Bucket, max int) []aggregate.Bucket {
	if max <= 0 || len(buckets) <= max {
		return buckets
	}
	if max == 1 {
		return buckets[len(buckets)-1:]
	}

	result := make([]aggregate.Bucket, 0, max)
	step := float64(len(buckets)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		result = append(result, buckets[idx])
	}
	return result
}

func (a *App) writeBucketsCSV(path string, buckets []aggregate.Bucket) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	exA, exB := a.Config.Exchanges.A, a.Config.Exchanges.B
	header := []string{
		"bucket_start",
		"mean_price_" + exA,
		"mean_price_" + exB,
		"difference",
		exA + "_higher",
		exB + "_higher",
		"sample_count",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, b := range buckets {
		record := []string{
			b.Start.UTC().Format(time.RFC3339),
			formatMoney(b.MeanPriceA),
			formatMoney(b.MeanPriceB),
			formatMoney(b.Difference),
			formatMoney(b.HigherAMagnitude),
			formatMoney(b.HigherBMagnitude),
			strconv.Itoa(b.SampleCount),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func (a *App) writeBucketsPNG(path string, buckets []aggregate.Bucket) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(buckets))
	priceA := make([]float64, len(buckets))
	priceB := make([]float64, len(buckets))
	spread := make([]float64, len(buckets))

	for i, b := range buckets {
		x[i] = b.Start
		priceA[i] = b.MeanPriceA
		priceB[i] = b.MeanPriceB
		spread[i] = math.Max(b.HigherAMagnitude, b.HigherBMagnitude)
	}

	moneyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Mean price (USD)",
			ValueFormatter: moneyFormatter,
			Range: &chart.ContinuousRange{
				Min: aggregate.MinPrice(buckets, aggregate.ChartPrices),
				Max: aggregate.MaxPrice(buckets),
			},
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Spread (USD)",
			ValueFormatter: moneyFormatter,
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: aggregate.MaxSpread(buckets),
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    a.Config.Exchanges.A,
				XValues: x,
				YValues: priceA,
			},
			chart.TimeSeries{
				Name:    a.Config.Exchanges.B,
				XValues: x,
				YValues: priceB,
			},
			chart.TimeSeries{
				Name:    "Spread",
				XValues: x,
				YValues: spread,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
