package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"divergence-watch/internal/tracker"
)

func sampleNotification(kind tracker.Kind) tracker.Notification {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	evt := tracker.Event{
		ID:               "evt-1",
		StartedAt:        at,
		HigherExchange:   "binance",
		LowerExchange:    "coinbase",
		InitialMagnitude: 12.5,
		MaxMagnitude:     18.75,
		MaxMagnitudeAt:   at.Add(time.Minute),
		Status:           tracker.StatusActive,
	}
	if kind == tracker.KindClosed {
		ended := at.Add(10 * time.Minute)
		evt.EndedAt = &ended
		evt.Status = tracker.StatusCompleted
	}
	return tracker.Notification{Kind: kind, Event: evt, At: at.Add(10 * time.Minute)}
}

func TestTelegramNotifySendsMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("token123", "chat456", server.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleNotification(tracker.KindOpened)); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotPayload["chat_id"] != "chat456" {
		t.Fatalf("unexpected chat_id %q", gotPayload["chat_id"])
	}
	text := gotPayload["text"]
	for _, want := range []string{"[Divergence Opened]", "binance above coinbase", "Initial: $12.50", "Max: $18.75"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramNotifyClosedIncludesDuration(t *testing.T) {
	var text string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		text = payload["text"]
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("t", "c", server.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleNotification(tracker.KindClosed)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(text, "[Divergence Closed]") {
		t.Fatalf("missing closed header:\n%s", text)
	}
	if !strings.Contains(text, "Duration: 10m0s") {
		t.Fatalf("missing duration:\n%s", text)
	}
}

func TestTelegramNotifyErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewTelegramNotifier("t", "c", server.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleNotification(tracker.KindOpened)); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestTelegramNotifyAPIRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("t", "c", server.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleNotification(tracker.KindOpened)); err == nil {
		t.Fatal("expected error for ok=false response")
	}
}
