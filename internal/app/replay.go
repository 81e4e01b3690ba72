package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"divergence-watch/internal/aggregate"
	"divergence-watch/internal/market"
)

// Replay re-runs the event state machine over the stored series and prints
// the events it would have produced. Useful after changing thresholds:
// events themselves are never persisted, only the raw samples are.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	rng, err := aggregate.ParseRange(opts.Range)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage backend disabled; nothing to replay")
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if window, ok := rng.Window(); ok {
		cutoff := time.Now().UTC().Add(-window)
		kept := samples[:0]
		for _, s := range samples {
			if !s.ObservedAt.Before(cutoff) {
				kept = append(kept, s)
			}
		}
		samples = kept
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples to replay")
		return nil
	}

	trk, err := a.newTracker()
	if err != nil {
		return err
	}

	exA, exB := a.Config.Exchanges.A, a.Config.Exchanges.B
	for _, s := range samples {
		quoteA := market.Quote{Exchange: exA, Price: s.PriceA, ObservedAt: s.ObservedAt}
		quoteB := market.Quote{Exchange: exB, Price: s.PriceB, ObservedAt: s.ObservedAt}
		if _, err := trk.Observe(quoteA, quoteB, s.ObservedAt); err != nil {
			a.Logger.Warn().Err(err).Time("observed_at", s.ObservedAt).Msg("skipping invalid sample")
		}
	}

	events := trk.History()
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events detected in replayed range")
		return nil
	}

	last := samples[len(samples)-1].ObservedAt
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tStatus\tHigher\tInitial\tMax\tDuration")
	for _, evt := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			evt.StartedAt.UTC().Format(time.RFC3339),
			evt.Status,
			evt.HigherExchange,
			formatMoney(evt.InitialMagnitude),
			formatMoney(evt.MaxMagnitude),
			evt.Duration(last).Truncate(time.Second),
		)
	}
	writer.Flush()

	a.Logger.Info().Int("samples", len(samples)).Int("events", len(events)).Msg("replay complete")
	return nil
}
