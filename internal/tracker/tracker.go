package tracker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"divergence-watch/internal/market"
)

// Status marks an event as still open or already closed.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Event is one tracked divergence interval between two exchanges.
type Event struct {
	ID               string
	StartedAt        time.Time
	EndedAt          *time.Time
	HigherExchange   string
	LowerExchange    string
	InitialMagnitude float64
	MaxMagnitude     float64
	MaxMagnitudeAt   time.Time
	Status           Status
}

// Duration returns the elapsed time of the event, using now while still active.
func (e Event) Duration(now time.Time) time.Duration {
	if e.EndedAt != nil {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return now.Sub(e.StartedAt)
}

// Kind labels a lifecycle transition.
type Kind string

const (
	KindOpened     Kind = "opened"
	KindMaxUpdated Kind = "max_updated"
	KindClosed     Kind = "closed"
)

// Notification is emitted on every transition; advisory only.
type Notification struct {
	Kind  Kind
	Event Event
	At    time.Time
}

const defaultHistoryLimit = 200

// Config tunes the event state machine. Thresholds are absolute price
// differences; none of the reference deployments agree on values, so nothing
// here is hardcoded.
type Config struct {
	OpenThreshold float64
	// CloseThreshold is the opposite-direction magnitude required to close.
	// Zero collapses to OpenThreshold (symmetric hysteresis).
	CloseThreshold float64
	Cooldown       time.Duration
	HistoryLimit   int
}

// Tracker implements the divergence event lifecycle: Idle until the absolute
// difference crosses the open threshold, Active until the direction inverts
// past the close threshold, then a cooldown before the next open. At most one
// event is active at a time.
//
// Tracker is not safe for concurrent use; the owning service serializes ticks.
type Tracker struct {
	cfg    Config
	logger zerolog.Logger

	active    *Event
	history   []*Event // newest first
	lastClose time.Time
	hasClosed bool
}

// New validates the configuration and builds a Tracker.
func New(cfg Config, logger zerolog.Logger) (*Tracker, error) {
	if cfg.OpenThreshold < 0 {
		return nil, fmt.Errorf("tracker: open threshold cannot be negative")
	}
	if cfg.CloseThreshold < 0 {
		return nil, fmt.Errorf("tracker: close threshold cannot be negative")
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("tracker: cooldown cannot be negative")
	}
	if cfg.CloseThreshold == 0 {
		cfg.CloseThreshold = cfg.OpenThreshold
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With().Str("component", "tracker").Logger(),
	}, nil
}

// Observe feeds one pair of quotes through the state machine and returns the
// transition that occurred, if any. Invalid quotes are rejected and leave
// state untouched.
func (t *Tracker) Observe(a, b market.Quote, now time.Time) (*Notification, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	diff := market.DirectionalDifference(a, b)
	abs := market.AbsoluteDifference(a, b)

	if t.active == nil {
		return t.maybeOpen(a, b, diff, abs, now), nil
	}
	return t.advance(a, diff, abs, now), nil
}

func (t *Tracker) maybeOpen(a, b market.Quote, diff, abs float64, now time.Time) *Notification {
	if abs < t.cfg.OpenThreshold || diff == 0 {
		return nil
	}
	if t.hasClosed && now.Sub(t.lastClose) < t.cfg.Cooldown {
		return nil
	}

	higher, lower := a.Exchange, b.Exchange
	if diff < 0 {
		higher, lower = b.Exchange, a.Exchange
	}

	evt := &Event{
		ID:               uuid.NewString(),
		StartedAt:        now,
		HigherExchange:   higher,
		LowerExchange:    lower,
		InitialMagnitude: abs,
		MaxMagnitude:     abs,
		MaxMagnitudeAt:   now,
		Status:           StatusActive,
	}
	t.active = evt
	t.history = append([]*Event{evt}, t.history...)
	if len(t.history) > t.cfg.HistoryLimit {
		t.history = t.history[:t.cfg.HistoryLimit]
	}

	t.logger.Info().
		Str("event_id", evt.ID).
		Str("higher", higher).
		Float64("magnitude", abs).
		Msg("divergence event opened")

	return &Notification{Kind: KindOpened, Event: *evt, At: now}
}

func (t *Tracker) advance(a market.Quote, diff, abs float64, now time.Time) *Notification {
	evt := t.active

	// signed is positive while the recorded higher exchange is still higher.
	signed := diff
	if evt.HigherExchange != a.Exchange {
		signed = -diff
	}

	if -signed >= t.cfg.CloseThreshold && signed < 0 {
		ended := now
		evt.EndedAt = &ended
		evt.Status = StatusCompleted
		t.active = nil
		t.lastClose = now
		t.hasClosed = true

		t.logger.Info().
			Str("event_id", evt.ID).
			Dur("duration", evt.Duration(now)).
			Float64("max_magnitude", evt.MaxMagnitude).
			Msg("divergence event closed")

		return &Notification{Kind: KindClosed, Event: *evt, At: now}
	}

	if signed > 0 && abs > evt.MaxMagnitude {
		evt.MaxMagnitude = abs
		evt.MaxMagnitudeAt = now

		t.logger.Debug().
			Str("event_id", evt.ID).
			Float64("max_magnitude", abs).
			Msg("new maximum divergence")

		return &Notification{Kind: KindMaxUpdated, Event: *evt, At: now}
	}

	return nil
}

// Current returns a copy of the active event, or nil while idle.
func (t *Tracker) Current() *Event {
	if t.active == nil {
		return nil
	}
	evt := *t.active
	return &evt
}

// History returns the event list newest first, active event included.
func (t *Tracker) History() []Event {
	out := make([]Event, 0, len(t.history))
	for _, evt := range t.history {
		out = append(out, *evt)
	}
	return out
}
