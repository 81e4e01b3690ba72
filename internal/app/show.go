package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints the most recent recorded samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage backend disabled; nothing to show")
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ObservedAt.After(samples[j].ObservedAt)
	})
	if opts.Limit > 0 && len(samples) > opts.Limit {
		samples = samples[:opts.Limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (UTC)\t%s\t%s\tDifference\tAbsolute\n", a.Config.Exchanges.A, a.Config.Exchanges.B)

	for _, s := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			s.ObservedAt.UTC().Format(time.RFC3339),
			formatMoney(s.PriceA),
			formatMoney(s.PriceB),
			formatMoney(s.Difference),
			formatMoney(s.AbsDifference),
		)
	}

	writer.Flush()
	return nil
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
