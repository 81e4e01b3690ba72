package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"divergence-watch/internal/tracker"
)

// Notifier delivers event lifecycle notifications to an external channel.
// Delivery is advisory; failures must never affect tracking.
type Notifier interface {
	Notify(ctx context.Context, note tracker.Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with a rendered event summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note tracker.Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("kind", string(note.Kind)).
		Str("event_id", note.Event.ID).
		Msg("alert dispatched (Telegram)")
	return nil
}

func renderMessage(note tracker.Notification) string {
	evt := note.Event
	builder := strings.Builder{}

	switch note.Kind {
	case tracker.KindOpened:
		builder.WriteString("[Divergence Opened]\n")
	case tracker.KindMaxUpdated:
		builder.WriteString("[Divergence Widened]\n")
	case tracker.KindClosed:
		builder.WriteString("[Divergence Closed]\n")
	default:
		builder.WriteString("[Divergence]\n")
	}

	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("%s above %s\n", evt.HigherExchange, evt.LowerExchange))
	builder.WriteString(fmt.Sprintf("Initial: $%s\n", money(evt.InitialMagnitude)))
	builder.WriteString(fmt.Sprintf("Max: $%s at %s UTC\n", money(evt.MaxMagnitude), evt.MaxMagnitudeAt.UTC().Format(time.RFC3339)))
	if note.Kind == tracker.KindClosed {
		builder.WriteString(fmt.Sprintf("Duration: %s\n", evt.Duration(note.At).Truncate(time.Second)))
	}
	return builder.String()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

var _ Notifier = (*TelegramNotifier)(nil)
