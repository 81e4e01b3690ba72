package source

import (
	"context"
	"errors"

	"divergence-watch/internal/market"
)

// ErrSourceUnavailable indicates a quote could not be produced this tick.
// The caller retries on the next tick; no backoff at this layer.
var ErrSourceUnavailable = errors.New("source: unavailable")

// Source produces quotes on demand for a named exchange.
type Source interface {
	Fetch(ctx context.Context, exchange string) (market.Quote, error)
	Close() error
}
