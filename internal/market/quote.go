package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidQuote indicates a quote with a non-finite or negative price.
var ErrInvalidQuote = errors.New("market: invalid quote")

// Quote is a single observed price on one exchange.
type Quote struct {
	Exchange   string
	Price      float64
	ObservedAt time.Time
}

// Validate rejects quotes that must not reach the tracker or recorder.
func (q Quote) Validate() error {
	if q.Exchange == "" {
		return fmt.Errorf("%w: empty exchange", ErrInvalidQuote)
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return fmt.Errorf("%w: non-finite price for %s", ErrInvalidQuote, q.Exchange)
	}
	if q.Price < 0 {
		return fmt.Errorf("%w: negative price %f for %s", ErrInvalidQuote, q.Price, q.Exchange)
	}
	return nil
}

// AbsoluteDifference returns |a.Price - b.Price|.
func AbsoluteDifference(a, b Quote) float64 {
	return math.Abs(a.Price - b.Price)
}

// DirectionalDifference returns a.Price - b.Price; positive means a is higher.
func DirectionalDifference(a, b Quote) float64 {
	return a.Price - b.Price
}
