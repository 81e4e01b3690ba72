package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"divergence-watch/internal/market"
)

const (
	handshakeTimeout  = 15 * time.Second
	defaultMinBackoff = 2 * time.Second
	defaultMaxBackoff = 60 * time.Second
	defaultStaleness  = 30 * time.Second
)

// ConnState describes one exchange connection.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateFailed       ConnState = "failed"
)

// ConnStatus is published on every connection state change.
type ConnStatus struct {
	Exchange string
	State    ConnState
	Attempt  int
	Err      error
}

// Endpoint configures one exchange stream.
type Endpoint struct {
	URL    string
	Symbol string
}

// FeedConfig parameterises the live source.
type FeedConfig struct {
	Endpoints   map[string]Endpoint
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	// Staleness bounds how old the last received quote may be before Fetch
	// reports the source unavailable.
	Staleness time.Duration
}

// Feed maintains one supervised websocket connection per exchange and serves
// the most recent ticker price from memory. Reconnects use exponential
// backoff up to MaxAttempts; state changes are published on a status channel
// instead of shared flags.
type Feed struct {
	cfg    FeedConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	latest map[string]market.Quote

	status chan ConnStatus
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeed builds a live feed source. Start must be called before Fetch.
func NewFeed(cfg FeedConfig, logger zerolog.Logger) (*Feed, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("source: no feed endpoints configured")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaultStaleness
	}
	return &Feed{
		cfg:    cfg,
		logger: logger.With().Str("component", "feed").Logger(),
		latest: make(map[string]market.Quote),
		status: make(chan ConnStatus, 16),
	}, nil
}

// Start launches one supervisor goroutine per configured exchange.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	for exchange, ep := range f.cfg.Endpoints {
		f.wg.Add(1)
		go func(exchange string, ep Endpoint) {
			defer f.wg.Done()
			f.supervise(ctx, exchange, ep)
		}(exchange, ep)
	}
}

// Status exposes connection state changes for the presentation layer.
func (f *Feed) Status() <-chan ConnStatus {
	return f.status
}

// Fetch returns the most recent quote for the exchange if it is fresh
// enough, otherwise ErrSourceUnavailable.
func (f *Feed) Fetch(ctx context.Context, exchange string) (market.Quote, error) {
	f.mu.RLock()
	quote, ok := f.latest[exchange]
	f.mu.RUnlock()
	if !ok {
		return market.Quote{}, fmt.Errorf("%w: no quote received for %s yet", ErrSourceUnavailable, exchange)
	}
	if age := time.Since(quote.ObservedAt); age > f.cfg.Staleness {
		return market.Quote{}, fmt.Errorf("%w: %s quote is %s old", ErrSourceUnavailable, exchange, age.Truncate(time.Second))
	}
	return quote, nil
}

// Close stops the supervisors and waits for them to exit.
func (f *Feed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	return nil
}

func (f *Feed) supervise(ctx context.Context, exchange string, ep Endpoint) {
	backoff := f.cfg.MinBackoff
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		f.publish(ConnStatus{Exchange: exchange, State: StateConnecting, Attempt: attempt})

		err := f.stream(ctx, exchange, ep)
		if ctx.Err() != nil {
			return
		}

		f.publish(ConnStatus{Exchange: exchange, State: StateDisconnected, Attempt: attempt, Err: err})
		f.logger.Warn().Err(err).
			Str("exchange", exchange).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("feed disconnected, will reconnect")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}

	f.publish(ConnStatus{Exchange: exchange, State: StateFailed, Attempt: f.cfg.MaxAttempts})
	f.logger.Error().Str("exchange", exchange).Msg("feed gave up after max reconnect attempts")
}

// stream runs one connection until it fails or ctx is cancelled.
func (f *Feed) stream(ctx context.Context, exchange string, ep Endpoint) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, ep.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", ep.URL, err)
	}
	defer conn.Close()

	if sub := subscribeMessage(exchange, ep.Symbol); sub != nil {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	f.publish(ConnStatus{Exchange: exchange, State: StateConnected})
	f.logger.Info().Str("exchange", exchange).Msg("feed connected")

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		price, ok := parseTicker(payload)
		if !ok {
			continue
		}

		quote := market.Quote{
			Exchange:   exchange,
			Price:      price,
			ObservedAt: time.Now().UTC(),
		}
		if err := quote.Validate(); err != nil {
			f.logger.Warn().Err(err).Str("exchange", exchange).Msg("discarding invalid feed quote")
			continue
		}

		f.mu.Lock()
		f.latest[exchange] = quote
		f.mu.Unlock()
	}
}

func (f *Feed) publish(status ConnStatus) {
	select {
	case f.status <- status:
	default:
		// Presentation is slow or absent; connection state is advisory.
	}
}

// subscribeMessage returns the channel subscription payload an exchange
// expects, or nil when the stream URL already selects the channel.
func subscribeMessage(exchange, symbol string) any {
	switch strings.ToLower(exchange) {
	case "coinbase":
		return map[string]any{
			"type":        "subscribe",
			"product_ids": []string{symbol},
			"channels":    []string{"ticker"},
		}
	default:
		return nil
	}
}

// tickerMessage covers the fields of interest across both venues: Binance
// miniTicker uses "c" for the close price, Coinbase ticker uses "price".
type tickerMessage struct {
	Close string `json:"c"`
	Price string `json:"price"`
	Type  string `json:"type"`
}

func parseTicker(payload []byte) (float64, bool) {
	var msg tickerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, false
	}
	raw := msg.Close
	if raw == "" {
		raw = msg.Price
	}
	if raw == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

var _ Source = (*Feed)(nil)
