package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"divergence-watch/internal/alerting"
	"divergence-watch/internal/config"
	"divergence-watch/internal/recorder"
	"divergence-watch/internal/scheduler"
	"divergence-watch/internal/service"
	"divergence-watch/internal/source"
	"divergence-watch/internal/storage"
	"divergence-watch/internal/tracker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newSource builds the configured quote source. Live feeds are started
// immediately; the returned cleanup stops them.
func (a *App) newSource(ctx context.Context) (source.Source, error) {
	ex := a.Config.Exchanges
	if ex.Mode == "live" {
		endpoints := make(map[string]source.Endpoint, len(ex.Feed.Endpoints))
		for name, ep := range ex.Feed.Endpoints {
			endpoints[name] = source.Endpoint{URL: ep.URL, Symbol: ep.Symbol}
		}
		feed, err := source.NewFeed(source.FeedConfig{
			Endpoints:   endpoints,
			MaxAttempts: ex.Feed.MaxAttempts,
			MinBackoff:  ex.Feed.MinBackoff,
			MaxBackoff:  ex.Feed.MaxBackoff,
			Staleness:   ex.Feed.Staleness,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		feed.Start(ctx)
		go a.logFeedStatus(ctx, feed)
		return feed, nil
	}

	sim := ex.Simulator
	return source.NewSimulated(source.SimulatorConfig{
		BasePrice: sim.BasePrice,
		Bias: map[string]float64{
			ex.A: sim.BiasA,
			ex.B: sim.BiasB,
		},
		Jitter:      sim.Jitter,
		SpikeChance: sim.SpikeChance,
		SpikeMin:    sim.SpikeMin,
		SpikeMax:    sim.SpikeMax,
		Latency:     sim.Latency,
		Seed:        sim.Seed,
	}, a.Logger), nil
}

func (a *App) logFeedStatus(ctx context.Context, feed *source.Feed) {
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-feed.Status():
			a.Logger.Info().
				Str("exchange", status.Exchange).
				Str("state", string(status.State)).
				Int("attempt", status.Attempt).
				Err(status.Err).
				Msg("feed connection state changed")
		}
	}
}

// openStore builds the configured series backend. A nil store disables
// persistence.
func (a *App) openStore(ctx context.Context) (recorder.Store, func(), error) {
	st := a.Config.Storage
	switch st.Backend {
	case "none":
		return nil, nil, nil
	case "file":
		store, err := storage.NewFileStore(st.File.Path, st.File.MaxBytes, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "redis":
		store, err := storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
			Key:      st.Redis.Key,
			MaxBytes: st.Redis.MaxBytes,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "postgres":
		pool, err := storage.NewPool(ctx, st.Database)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewPostgresStore(pool, a.Logger)
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("storage backend %q is not supported", st.Backend)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newTracker() (*tracker.Tracker, error) {
	return tracker.New(tracker.Config{
		OpenThreshold:  a.Config.Tracker.OpenThreshold,
		CloseThreshold: a.Config.Tracker.CloseThreshold,
		Cooldown:       a.Config.Tracker.Cooldown,
		HistoryLimit:   a.Config.Tracker.HistoryLimit,
	}, a.Logger)
}

func (a *App) newRecorder(store recorder.Store) (*recorder.Recorder, error) {
	return recorder.New(recorder.Config{
		SamplingInterval: a.Config.Recorder.SamplingInterval,
		Retention:        a.Config.Recorder.Retention,
	}, store, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("storage backend disabled; series will not survive restarts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	src, err := a.newSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	trk, err := a.newTracker()
	if err != nil {
		return err
	}
	rec, err := a.newRecorder(store)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(a.Config, sched, src, trk, rec, a.newNotifier(), a.Logger)

	a.Logger.Info().
		Str("exchange_a", a.Config.Exchanges.A).
		Str("exchange_b", a.Config.Exchanges.B).
		Str("mode", a.Config.Exchanges.Mode).
		Msg("starting divergence monitor")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("divergence monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting the recorded series.
type ExportOptions struct {
	Range       string
	PNGPath     string
	CSVPath     string
	MaxPoints   int
	BucketWidth time.Duration
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ReplayOptions configure the replay command.
type ReplayOptions struct {
	Range string
}
