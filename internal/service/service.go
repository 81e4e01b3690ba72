package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"divergence-watch/internal/aggregate"
	"divergence-watch/internal/alerting"
	"divergence-watch/internal/config"
	"divergence-watch/internal/market"
	"divergence-watch/internal/recorder"
	"divergence-watch/internal/scheduler"
	"divergence-watch/internal/source"
	"divergence-watch/internal/tracker"
)

const flushTimeout = 10 * time.Second

// Health is the monitor's transient status. A failed tick sets LastError;
// the next successful tick clears it.
type Health struct {
	Healthy   bool
	LastError string
	LastTick  time.Time
}

// Monitor orchestrates one tick: fetch both quotes, feed the tracker and the
// recorder, queue a persistence flush. Tracker and recorder state is only
// mutated under mu with both quotes already fetched and validated, so a tick
// either fully applies or fully no-ops.
type Monitor struct {
	sched      *scheduler.Scheduler
	src        source.Source
	tracker    *tracker.Tracker
	recorder   *recorder.Recorder
	notifier   alerting.Notifier
	logger     zerolog.Logger
	exchangeA  string
	exchangeB  string
	alertKinds map[tracker.Kind]bool

	mu     sync.Mutex
	health Health

	// inFlight skips a tick that fires while the previous one is still
	// running, so interleaved ticks can never race the open/close
	// transitions.
	inFlight atomic.Bool

	notifications chan tracker.Notification
	flushCh       chan struct{}
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, src source.Source, trk *tracker.Tracker, rec *recorder.Recorder, notifier alerting.Notifier, logger zerolog.Logger) *Monitor {
	kinds := make(map[tracker.Kind]bool, len(cfg.Alerting.Kinds))
	if cfg.Alerting.Enabled {
		for _, k := range cfg.Alerting.Kinds {
			kinds[tracker.Kind(k)] = true
		}
	}

	return &Monitor{
		sched:         sched,
		src:           src,
		tracker:       trk,
		recorder:      rec,
		notifier:      notifier,
		logger:        logger.With().Str("component", "monitor").Logger(),
		exchangeA:     cfg.Exchanges.A,
		exchangeB:     cfg.Exchanges.B,
		alertKinds:    kinds,
		health:        Health{Healthy: true},
		notifications: make(chan tracker.Notification, 64),
		flushCh:       make(chan struct{}, 1),
	}
}

// Run restores the series, then blocks in the tick loop until ctx is
// cancelled. The flush worker runs alongside so persistence never blocks a
// tick.
func (m *Monitor) Run(ctx context.Context) error {
	if m.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if err := m.recorder.Load(ctx, time.Now().UTC()); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.flushWorker(ctx)
	}()

	err := m.sched.Run(ctx, m.Tick)
	wg.Wait()
	return err
}

// Tick processes one polling cycle. Exported so replays and tests can drive
// the monitor without the scheduler.
func (m *Monitor) Tick(ctx context.Context, now time.Time) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Warn().Time("tick", now).Msg("previous tick still in flight, skipping")
		return nil
	}
	defer m.inFlight.Store(false)

	quoteA, quoteB, err := m.fetchPair(ctx)
	if err != nil {
		m.setError(err)
		return err
	}

	// A pairwise comparison needs both legs; one bad quote discards both.
	if err := quoteA.Validate(); err != nil {
		m.setError(err)
		return err
	}
	if err := quoteB.Validate(); err != nil {
		m.setError(err)
		return err
	}

	m.mu.Lock()
	note, err := m.tracker.Observe(quoteA, quoteB, now)
	if err != nil {
		m.mu.Unlock()
		m.setError(err)
		return err
	}
	sample, err := m.recorder.MaybeRecord(quoteA, quoteB, now)
	if err != nil {
		m.mu.Unlock()
		m.setError(err)
		return err
	}
	evicted := m.recorder.EvictExpired(now)
	m.health = Health{Healthy: true, LastTick: now}
	m.mu.Unlock()

	if sample != nil || evicted > 0 {
		m.requestFlush()
	}

	if note != nil {
		m.publish(*note)
		m.alert(ctx, *note)
	}

	m.logger.Debug().
		Float64("price_a", quoteA.Price).
		Float64("price_b", quoteB.Price).
		Float64("difference", market.DirectionalDifference(quoteA, quoteB)).
		Bool("sampled", sample != nil).
		Msg("tick processed")
	return nil
}

func (m *Monitor) fetchPair(ctx context.Context) (market.Quote, market.Quote, error) {
	var quoteA, quoteB market.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quoteA, err = m.src.Fetch(gctx, m.exchangeA)
		return err
	})
	g.Go(func() error {
		var err error
		quoteB, err = m.src.Fetch(gctx, m.exchangeB)
		return err
	})
	if err := g.Wait(); err != nil {
		return market.Quote{}, market.Quote{}, fmt.Errorf("fetch quotes: %w", err)
	}
	return quoteA, quoteB, nil
}

func (m *Monitor) setError(err error) {
	m.mu.Lock()
	m.health = Health{Healthy: false, LastError: err.Error(), LastTick: m.health.LastTick}
	m.mu.Unlock()
}

func (m *Monitor) publish(note tracker.Notification) {
	select {
	case m.notifications <- note:
	default:
		// Presentation is not keeping up; notifications are advisory.
	}
}

func (m *Monitor) alert(ctx context.Context, note tracker.Notification) {
	if m.notifier == nil || !m.alertKinds[note.Kind] {
		return
	}
	if err := m.notifier.Notify(ctx, note); err != nil {
		m.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch alert")
	}
}

// requestFlush queues a persistence write without blocking the tick.
func (m *Monitor) requestFlush() {
	select {
	case m.flushCh <- struct{}{}:
	default:
		// A flush is already pending; it will pick up the latest state.
	}
}

func (m *Monitor) flushWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Final write so a clean shutdown loses nothing.
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			m.flush(flushCtx)
			cancel()
			return
		case <-m.flushCh:
			m.flush(ctx)
		}
	}
}

func (m *Monitor) flush(ctx context.Context) {
	m.mu.Lock()
	err := m.recorder.Flush(ctx)
	m.mu.Unlock()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to persist series")
	}
}

// CurrentEvent returns a copy of the active event, or nil while idle.
func (m *Monitor) CurrentEvent() *tracker.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker.Current()
}

// EventHistory returns the event list newest first.
func (m *Monitor) EventHistory() []tracker.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker.History()
}

// ChartData aggregates the recorded series into chart-ready buckets.
func (m *Monitor) ChartData(rng aggregate.TimeRange, width time.Duration) []aggregate.Bucket {
	m.mu.Lock()
	samples := m.recorder.Samples()
	m.mu.Unlock()
	return aggregate.Aggregate(samples, rng, width, time.Now().UTC())
}

// Notifications exposes the lifecycle stream for the presentation layer.
func (m *Monitor) Notifications() <-chan tracker.Notification {
	return m.notifications
}

// Health reports the monitor's transient status.
func (m *Monitor) Status() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}
