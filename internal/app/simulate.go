package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"divergence-watch/internal/market"
)

// SimulateEvent pushes one artificial quote pair through the tracker and
// delivers the resulting notification, exercising the full alert path
// end to end.
func (a *App) SimulateEvent(ctx context.Context, priceA, priceB float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	trk, err := a.newTracker()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	quoteA := market.Quote{Exchange: a.Config.Exchanges.A, Price: priceA, ObservedAt: now}
	quoteB := market.Quote{Exchange: a.Config.Exchanges.B, Price: priceB, ObservedAt: now}

	note, err := trk.Observe(quoteA, quoteB, now)
	if err != nil {
		return err
	}
	if note == nil {
		return fmt.Errorf("difference %.2f does not cross the open threshold %.2f",
			market.AbsoluteDifference(quoteA, quoteB), a.Config.Tracker.OpenThreshold)
	}

	return notifier.Notify(ctx, *note)
}
