package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"divergence-watch/internal/market"
)

// SimulatorConfig shapes the synthetic price process: a shared base price,
// a static per-exchange bias so the two legs diverge consistently, bounded
// jitter, and occasional larger spikes in either direction.
type SimulatorConfig struct {
	BasePrice   float64
	Bias        map[string]float64
	Jitter      float64
	SpikeChance float64
	SpikeMin    float64
	SpikeMax    float64
	Latency     time.Duration
	Seed        int64
}

// Simulated is an in-process price source for development and demos. All
// randomness goes through an owned *rand.Rand rather than the package-global
// source, so runs are reproducible under a fixed seed.
type Simulated struct {
	cfg    SimulatorConfig
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated builds a simulated source, applying defaults for zero fields.
func NewSimulated(cfg SimulatorConfig, logger zerolog.Logger) *Simulated {
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 2000
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 10
	}
	if cfg.SpikeChance < 0 || cfg.SpikeChance >= 1 {
		cfg.SpikeChance = 0.05
	}
	if cfg.SpikeMin <= 0 {
		cfg.SpikeMin = 10
	}
	if cfg.SpikeMax <= cfg.SpikeMin {
		cfg.SpikeMax = cfg.SpikeMin + 30
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		cfg:    cfg,
		logger: logger.With().Str("component", "simulated_source").Logger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Fetch returns a synthetic quote for the exchange.
func (s *Simulated) Fetch(ctx context.Context, exchange string) (market.Quote, error) {
	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return market.Quote{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	price := s.cfg.BasePrice + s.cfg.Bias[exchange]
	price += (s.rng.Float64()*2 - 1) * s.cfg.Jitter
	if s.rng.Float64() < s.cfg.SpikeChance {
		spike := s.cfg.SpikeMin + s.rng.Float64()*(s.cfg.SpikeMax-s.cfg.SpikeMin)
		if s.rng.Float64() < 0.5 {
			spike = -spike
		}
		price += spike
		s.logger.Debug().Str("exchange", exchange).Float64("spike", spike).Msg("simulated price spike")
	}
	s.mu.Unlock()

	if price < 0 {
		price = 0
	}

	return market.Quote{
		Exchange:   exchange,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// Close is a no-op for the simulator.
func (s *Simulated) Close() error { return nil }

var _ Source = (*Simulated)(nil)
