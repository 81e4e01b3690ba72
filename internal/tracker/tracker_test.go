package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"divergence-watch/internal/market"
)

var baseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	trk, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return trk
}

func observe(t *testing.T, trk *Tracker, priceA, priceB float64, at time.Time) *Notification {
	t.Helper()
	note, err := trk.Observe(
		market.Quote{Exchange: "binance", Price: priceA, ObservedAt: at},
		market.Quote{Exchange: "coinbase", Price: priceB, ObservedAt: at},
		at,
	)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	return note
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{OpenThreshold: -1}, zerolog.Nop()); err == nil {
		t.Fatal("negative open threshold should be rejected")
	}
	if _, err := New(Config{CloseThreshold: -1}, zerolog.Nop()); err == nil {
		t.Fatal("negative close threshold should be rejected")
	}
	if _, err := New(Config{Cooldown: -time.Second}, zerolog.Nop()); err == nil {
		t.Fatal("negative cooldown should be rejected")
	}
}

func TestOpenAtExactThreshold(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10})

	// Just under the threshold must not open.
	if note := observe(t, trk, 2009.999, 2000, baseTime); note != nil {
		t.Fatalf("difference below threshold opened an event: %+v", note)
	}
	if trk.Current() != nil {
		t.Fatal("no event should be active")
	}

	// Exactly at the threshold must open.
	note := observe(t, trk, 2010, 2000, baseTime.Add(time.Second))
	if note == nil || note.Kind != KindOpened {
		t.Fatalf("expected opened notification, got %+v", note)
	}

	evt := trk.Current()
	if evt == nil {
		t.Fatal("event should be active")
	}
	if evt.HigherExchange != "binance" || evt.LowerExchange != "coinbase" {
		t.Fatalf("wrong direction: %+v", evt)
	}
	if evt.InitialMagnitude != 10 || evt.MaxMagnitude != 10 {
		t.Fatalf("wrong magnitudes: %+v", evt)
	}
	if evt.Status != StatusActive || evt.EndedAt != nil {
		t.Fatalf("event should be active with no end time: %+v", evt)
	}
}

func TestMonotonicMax(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10})
	observe(t, trk, 2015, 2000, baseTime)

	openedAt := trk.Current().MaxMagnitudeAt

	// Smaller same-direction difference: no update.
	if note := observe(t, trk, 2012, 2000, baseTime.Add(time.Second)); note != nil {
		t.Fatalf("smaller difference should not update max: %+v", note)
	}
	if evt := trk.Current(); evt.MaxMagnitude != 15 || !evt.MaxMagnitudeAt.Equal(openedAt) {
		t.Fatalf("max should be unchanged: %+v", evt)
	}

	// Equal difference: strict > semantics, no update.
	if note := observe(t, trk, 2015, 2000, baseTime.Add(2*time.Second)); note != nil {
		t.Fatalf("equal difference should not update max: %+v", note)
	}

	// Larger difference: max and its timestamp advance together.
	note := observe(t, trk, 2020, 2000, baseTime.Add(3*time.Second))
	if note == nil || note.Kind != KindMaxUpdated {
		t.Fatalf("expected max_updated, got %+v", note)
	}
	evt := trk.Current()
	if evt.MaxMagnitude != 20 || !evt.MaxMagnitudeAt.Equal(baseTime.Add(3*time.Second)) {
		t.Fatalf("max not advanced: %+v", evt)
	}
	if evt.MaxMagnitude < evt.InitialMagnitude {
		t.Fatalf("max below initial magnitude: %+v", evt)
	}
}

func TestCloseRequiresInversionPastThreshold(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10, CloseThreshold: 10})
	observe(t, trk, 2015, 2000, baseTime)

	// Difference shrinks but direction holds: still active.
	if note := observe(t, trk, 2001, 2000, baseTime.Add(time.Second)); note != nil {
		t.Fatalf("shrinking difference should not transition: %+v", note)
	}

	// Inverted but below the close threshold: still active.
	if note := observe(t, trk, 2000, 2005, baseTime.Add(2*time.Second)); note != nil {
		t.Fatalf("small inversion should not close: %+v", note)
	}
	if trk.Current() == nil {
		t.Fatal("event should still be active")
	}

	// Inverted by exactly the close threshold: closes.
	note := observe(t, trk, 2000, 2010, baseTime.Add(3*time.Second))
	if note == nil || note.Kind != KindClosed {
		t.Fatalf("expected closed notification, got %+v", note)
	}
	if trk.Current() != nil {
		t.Fatal("no event should remain active after close")
	}

	history := trk.History()
	if len(history) != 1 {
		t.Fatalf("expected one event in history, got %d", len(history))
	}
	evt := history[0]
	if evt.Status != StatusCompleted || evt.EndedAt == nil {
		t.Fatalf("closed event not completed: %+v", evt)
	}
	if !evt.EndedAt.Equal(baseTime.Add(3 * time.Second)) {
		t.Fatalf("wrong end time: %+v", evt)
	}
}

func TestAsymmetricHysteresis(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 20, CloseThreshold: 5})
	observe(t, trk, 2025, 2000, baseTime)

	// Inversion of 6 exceeds the close threshold even though it is far
	// below the open threshold.
	note := observe(t, trk, 2000, 2006, baseTime.Add(time.Second))
	if note == nil || note.Kind != KindClosed {
		t.Fatalf("expected close under asymmetric hysteresis, got %+v", note)
	}
}

func TestCooldownEnforcement(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10, Cooldown: 5000 * time.Millisecond})

	observe(t, trk, 2015, 2000, baseTime)
	closed := observe(t, trk, 2000, 2015, baseTime.Add(time.Second))
	if closed == nil || closed.Kind != KindClosed {
		t.Fatalf("expected close, got %+v", closed)
	}
	closeTime := baseTime.Add(time.Second)

	// 4999ms after the close: still cooling down.
	if note := observe(t, trk, 2020, 2000, closeTime.Add(4999*time.Millisecond)); note != nil {
		t.Fatalf("event opened during cooldown: %+v", note)
	}

	// Exactly 5000ms after the close: allowed.
	note := observe(t, trk, 2020, 2000, closeTime.Add(5000*time.Millisecond))
	if note == nil || note.Kind != KindOpened {
		t.Fatalf("event should open once cooldown elapsed, got %+v", note)
	}
}

func TestSingleActiveInvariant(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10})

	prices := [][2]float64{
		{2015, 2000}, {2030, 2000}, {2000, 2020}, {2025, 2000},
		{2000, 2018}, {2040, 2000}, {2000, 2000},
	}
	at := baseTime
	for _, p := range prices {
		observe(t, trk, p[0], p[1], at)
		at = at.Add(time.Second)

		active := 0
		for _, evt := range trk.History() {
			if evt.Status == StatusActive {
				active++
			}
		}
		if active > 1 {
			t.Fatalf("more than one active event: %d", active)
		}
	}
}

func TestInvalidQuoteLeavesStateUnchanged(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10})
	observe(t, trk, 2015, 2000, baseTime)

	before := *trk.Current()
	_, err := trk.Observe(
		market.Quote{Exchange: "binance", Price: math.NaN(), ObservedAt: baseTime},
		market.Quote{Exchange: "coinbase", Price: 2000, ObservedAt: baseTime},
		baseTime.Add(time.Second),
	)
	if err == nil {
		t.Fatal("non-finite price should be rejected")
	}

	after := trk.Current()
	if after == nil || after.MaxMagnitude != before.MaxMagnitude || !after.MaxMagnitudeAt.Equal(before.MaxMagnitudeAt) {
		t.Fatalf("state changed after rejected input: before %+v after %+v", before, after)
	}
}

func TestHistoryNewestFirstAndCapped(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 10, HistoryLimit: 2})

	at := baseTime
	for i := 0; i < 3; i++ {
		observe(t, trk, 2015, 2000, at)
		observe(t, trk, 2000, 2015, at.Add(time.Second))
		at = at.Add(time.Minute)
	}

	history := trk.History()
	if len(history) != 2 {
		t.Fatalf("history should be capped at 2, got %d", len(history))
	}
	if !history[0].StartedAt.After(history[1].StartedAt) {
		t.Fatalf("history not newest first: %v then %v", history[0].StartedAt, history[1].StartedAt)
	}
}

// Streams the reference quote sequence at 5-minute spacing and checks the
// full lifecycle: +15 opens, +10 holds, -20 closes.
func TestLifecycleScenario(t *testing.T) {
	trk := newTestTracker(t, Config{OpenThreshold: 15, CloseThreshold: 15, Cooldown: 5 * time.Second})

	quotesA := []float64{2000, 2020, 2025, 2010}
	quotesB := []float64{2010, 2005, 2015, 2030}
	var notes []*Notification

	at := baseTime
	for i := range quotesA {
		notes = append(notes, observe(t, trk, quotesA[i], quotesB[i], at))
		at = at.Add(5 * time.Minute)
	}

	// Sample 1: -10, below threshold.
	if notes[0] != nil {
		t.Fatalf("sample 1 should not transition: %+v", notes[0])
	}
	// Sample 2: +15, opens.
	if notes[1] == nil || notes[1].Kind != KindOpened {
		t.Fatalf("sample 2 should open: %+v", notes[1])
	}
	if notes[1].Event.HigherExchange != "binance" {
		t.Fatalf("binance should be higher: %+v", notes[1].Event)
	}
	// Sample 3: +10, same direction, below max.
	if notes[2] != nil {
		t.Fatalf("sample 3 should not transition: %+v", notes[2])
	}
	// Sample 4: -20, inverts past the close threshold.
	if notes[3] == nil || notes[3].Kind != KindClosed {
		t.Fatalf("sample 4 should close: %+v", notes[3])
	}
	if notes[3].Event.MaxMagnitude != 15 {
		t.Fatalf("max magnitude should stay at 15: %+v", notes[3].Event)
	}
}
