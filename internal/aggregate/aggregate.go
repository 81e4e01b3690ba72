package aggregate

import (
	"fmt"
	"sort"
	"time"

	"divergence-watch/internal/recorder"
)

// TimeRange selects how far back the aggregation looks.
type TimeRange string

const (
	RangeHour  TimeRange = "1h"
	RangeDay   TimeRange = "24h"
	RangeWeek  TimeRange = "7d"
	RangeMonth TimeRange = "30d"
	RangeAll   TimeRange = "all"
)

// DefaultBucketWidth matches the recorder's default sampling cadence.
const DefaultBucketWidth = 5 * time.Minute

// Window returns the lookback duration; ok is false for RangeAll, which
// applies no filter.
func (r TimeRange) Window() (time.Duration, bool) {
	switch r {
	case RangeHour:
		return time.Hour, true
	case RangeDay:
		return 24 * time.Hour, true
	case RangeWeek:
		return 7 * 24 * time.Hour, true
	case RangeMonth:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ParseRange validates a range string.
func ParseRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case RangeHour, RangeDay, RangeWeek, RangeMonth, RangeAll:
		return TimeRange(s), nil
	case "":
		return RangeAll, nil
	}
	return "", fmt.Errorf("aggregate: unknown time range %q", s)
}

// Bucket is one fixed-width interval summarised from raw samples. Magnitudes
// are recomputed from the running means after each sample rather than taken
// as a max of individual differences, so a single spike inside a bucket does
// not dominate it.
type Bucket struct {
	Start            time.Time
	MeanPriceA       float64
	MeanPriceB       float64
	Difference       float64 // MeanPriceA - MeanPriceB
	HigherAMagnitude float64
	HigherBMagnitude float64
	SampleCount      int
}

// Aggregate partitions the series into width-aligned buckets over the
// requested range. An empty filtered series yields an empty slice, never
// placeholder data.
func Aggregate(samples []recorder.Sample, rng TimeRange, width time.Duration, now time.Time) []Bucket {
	if width <= 0 {
		width = DefaultBucketWidth
	}

	filtered := samples
	if window, ok := rng.Window(); ok {
		cutoff := now.Add(-window)
		filtered = make([]recorder.Sample, 0, len(samples))
		for _, s := range samples {
			if !s.ObservedAt.Before(cutoff) {
				filtered = append(filtered, s)
			}
		}
	}
	if len(filtered) == 0 {
		return []Bucket{}
	}

	ordered := append([]recorder.Sample(nil), filtered...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ObservedAt.Before(ordered[j].ObservedAt)
	})

	buckets := make([]Bucket, 0)
	var current *Bucket
	for _, s := range ordered {
		start := s.ObservedAt.Truncate(width)
		if current == nil || !current.Start.Equal(start) {
			buckets = append(buckets, Bucket{Start: start})
			current = &buckets[len(buckets)-1]
		}

		n := float64(current.SampleCount)
		current.MeanPriceA = (current.MeanPriceA*n + s.PriceA) / (n + 1)
		current.MeanPriceB = (current.MeanPriceB*n + s.PriceB) / (n + 1)
		current.SampleCount++

		current.Difference = current.MeanPriceA - current.MeanPriceB
		current.HigherAMagnitude = max(0, current.Difference)
		current.HigherBMagnitude = max(0, -current.Difference)
	}

	return buckets
}
