package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"divergence-watch/internal/recorder"
)

// timeLayout is RFC 3339 with millisecond precision; timestamps round-trip
// through it exactly.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type sampleJSON struct {
	ID            string  `json:"id"`
	ObservedAt    string  `json:"observedAt"`
	PriceA        float64 `json:"priceA"`
	PriceB        float64 `json:"priceB"`
	Difference    float64 `json:"difference"`
	AbsDifference float64 `json:"absoluteDifference"`
}

func encodeSamples(samples []recorder.Sample) ([]byte, error) {
	out := make([]sampleJSON, len(samples))
	for i, s := range samples {
		out[i] = sampleJSON{
			ID:            s.ID,
			ObservedAt:    s.ObservedAt.UTC().Truncate(time.Millisecond).Format(timeLayout),
			PriceA:        s.PriceA,
			PriceB:        s.PriceB,
			Difference:    s.Difference,
			AbsDifference: s.AbsDifference,
		}
	}
	return json.Marshal(out)
}

func decodeSamples(payload []byte) ([]recorder.Sample, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var raw []sampleJSON
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	samples := make([]recorder.Sample, len(raw))
	for i, s := range raw {
		observed, err := time.Parse(timeLayout, s.ObservedAt)
		if err != nil {
			// Be lenient with series written by other tooling.
			observed, err = time.Parse(time.RFC3339Nano, s.ObservedAt)
			if err != nil {
				return nil, fmt.Errorf("decode sample %d timestamp: %w", i, err)
			}
		}
		samples[i] = recorder.Sample{
			ID:            s.ID,
			ObservedAt:    observed,
			PriceA:        s.PriceA,
			PriceB:        s.PriceB,
			Difference:    s.Difference,
			AbsDifference: s.AbsDifference,
		}
	}
	return samples, nil
}
