package recorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"divergence-watch/internal/market"
)

// ErrQuotaExceeded is returned by a Store when the backend refuses a write
// for capacity reasons. The recorder reacts by evicting the oldest samples
// and retrying once.
var ErrQuotaExceeded = errors.New("recorder: storage quota exceeded")

// Sample is one persisted divergence observation.
type Sample struct {
	ID            string
	ObservedAt    time.Time
	PriceA        float64
	PriceB        float64
	Difference    float64 // PriceA - PriceB
	AbsDifference float64
}

// Store persists the whole series as an opaque blob; Load is called once at
// startup, Save after every mutation.
type Store interface {
	Load(ctx context.Context) ([]Sample, error)
	Save(ctx context.Context, samples []Sample) error
}

// quotaKeepRatio is the share of newest samples kept after a quota failure.
const quotaKeepRatio = 0.8

// Config tunes sampling cadence and retention.
type Config struct {
	SamplingInterval time.Duration
	Retention        time.Duration
}

// Recorder keeps a time-ordered divergence series, throttled to one sample
// per interval regardless of how fast quotes arrive upstream.
//
// Recorder is not safe for concurrent use; the owning service serializes
// access.
type Recorder struct {
	cfg    Config
	store  Store
	logger zerolog.Logger

	samples      []Sample
	lastRecorded time.Time
	hasRecorded  bool
}

// New validates the configuration and builds a Recorder.
func New(cfg Config, store Store, logger zerolog.Logger) (*Recorder, error) {
	if cfg.SamplingInterval <= 0 {
		return nil, fmt.Errorf("recorder: sampling interval must be positive")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("recorder: retention must be positive")
	}
	return &Recorder{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "recorder").Logger(),
	}, nil
}

// Load restores the series from the store. Samples already past retention
// are dropped on the way in.
func (r *Recorder) Load(ctx context.Context, now time.Time) error {
	if r.store == nil {
		return nil
	}
	samples, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ObservedAt.Before(samples[j].ObservedAt)
	})
	r.samples = samples
	r.EvictExpired(now)
	if n := len(r.samples); n > 0 {
		r.lastRecorded = r.samples[n-1].ObservedAt
		r.hasRecorded = true
	}
	r.logger.Info().Int("samples", len(r.samples)).Msg("series restored")
	return nil
}

// MaybeRecord appends a sample if at least one sampling interval elapsed
// since the previous one. The very first sample is always recorded. Returns
// nil when throttled.
func (r *Recorder) MaybeRecord(a, b market.Quote, now time.Time) (*Sample, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if r.hasRecorded && now.Sub(r.lastRecorded) < r.cfg.SamplingInterval {
		return nil, nil
	}

	diff := market.DirectionalDifference(a, b)
	sample := Sample{
		ID:            uuid.NewString(),
		ObservedAt:    now,
		PriceA:        a.Price,
		PriceB:        b.Price,
		Difference:    diff,
		AbsDifference: market.AbsoluteDifference(a, b),
	}
	r.samples = append(r.samples, sample)
	r.lastRecorded = now
	r.hasRecorded = true
	return &sample, nil
}

// EvictExpired drops every sample older than the retention window.
func (r *Recorder) EvictExpired(now time.Time) int {
	cutoff := now.Add(-r.cfg.Retention)
	idx := sort.Search(len(r.samples), func(i int) bool {
		return !r.samples[i].ObservedAt.Before(cutoff)
	})
	if idx == 0 {
		return 0
	}
	r.samples = append([]Sample(nil), r.samples[idx:]...)
	r.logger.Debug().Int("evicted", idx).Msg("expired samples evicted")
	return idx
}

// Flush writes the series to the store. On a quota failure the oldest 20%
// of samples are dropped and the write retried once; a second failure is
// surfaced to the caller.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	err := r.store.Save(ctx, r.samples)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return fmt.Errorf("save series: %w", err)
	}

	evicted := r.evictOldest(quotaKeepRatio)
	r.logger.Warn().Int("evicted", evicted).Msg("storage quota exceeded, evicted oldest samples")

	if err := r.store.Save(ctx, r.samples); err != nil {
		return fmt.Errorf("save series after quota eviction: %w", err)
	}
	return nil
}

// evictOldest keeps the newest share of samples and returns how many were
// dropped. The newest sample always survives.
func (r *Recorder) evictOldest(keep float64) int {
	kept := int(float64(len(r.samples)) * keep)
	if kept < 1 && len(r.samples) > 0 {
		kept = 1
	}
	dropped := len(r.samples) - kept
	if dropped <= 0 {
		return 0
	}
	r.samples = append([]Sample(nil), r.samples[dropped:]...)
	return dropped
}

// Samples returns a copy of the series in ascending time order.
func (r *Recorder) Samples() []Sample {
	return append([]Sample(nil), r.samples...)
}

// Len reports the number of retained samples.
func (r *Recorder) Len() int {
	return len(r.samples)
}
