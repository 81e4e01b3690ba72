package aggregate

import (
	"math"
	"testing"
	"time"

	"divergence-watch/internal/recorder"
)

func sampleAt(at time.Time, priceA, priceB float64) recorder.Sample {
	return recorder.Sample{
		ObservedAt:    at,
		PriceA:        priceA,
		PriceB:        priceB,
		Difference:    priceA - priceB,
		AbsDifference: math.Abs(priceA - priceB),
	}
}

func TestParseRange(t *testing.T) {
	for _, valid := range []string{"1h", "24h", "7d", "30d", "all", ""} {
		if _, err := ParseRange(valid); err != nil {
			t.Fatalf("range %q should parse: %v", valid, err)
		}
	}
	if _, err := ParseRange("2w"); err == nil {
		t.Fatal("unknown range should be rejected")
	}
}

func TestBucketBoundaries(t *testing.T) {
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	samples := []recorder.Sample{
		sampleAt(day.Add(2*time.Minute+30*time.Second), 2010, 2000),
		sampleAt(day.Add(4*time.Minute+59*time.Second), 2012, 2000),
		sampleAt(day.Add(5*time.Minute), 2014, 2000),
	}

	buckets := Aggregate(samples, RangeAll, 5*time.Minute, day.Add(time.Hour))
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	// 10:02:30 and 10:04:59 share the 10:00:00 bucket.
	if !buckets[0].Start.Equal(day) {
		t.Fatalf("first bucket should start at 10:00:00, got %v", buckets[0].Start)
	}
	if buckets[0].SampleCount != 2 {
		t.Fatalf("first bucket should hold 2 samples, got %d", buckets[0].SampleCount)
	}

	// 10:05:00 begins the next bucket.
	if !buckets[1].Start.Equal(day.Add(5 * time.Minute)) {
		t.Fatalf("second bucket should start at 10:05:00, got %v", buckets[1].Start)
	}
	if buckets[1].SampleCount != 1 {
		t.Fatalf("second bucket should hold 1 sample, got %d", buckets[1].SampleCount)
	}
}

func TestRunningMeanAggregation(t *testing.T) {
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	samples := []recorder.Sample{
		sampleAt(day, 100, 98),
		sampleAt(day.Add(time.Minute), 102, 98),
	}

	buckets := Aggregate(samples, RangeAll, 5*time.Minute, day.Add(time.Hour))
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}

	b := buckets[0]
	if b.MeanPriceA != 101 || b.MeanPriceB != 98 {
		t.Fatalf("wrong means: a=%f b=%f", b.MeanPriceA, b.MeanPriceB)
	}
	if b.HigherAMagnitude != 3 {
		t.Fatalf("higherA should be 3, got %f", b.HigherAMagnitude)
	}
	if b.HigherBMagnitude != 0 {
		t.Fatalf("higherB should be 0, got %f", b.HigherBMagnitude)
	}
	if b.SampleCount != 2 {
		t.Fatalf("sample count should be 2, got %d", b.SampleCount)
	}
}

func TestTimeRangeFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []recorder.Sample{
		sampleAt(now.Add(-2*time.Hour), 2010, 2000),
		sampleAt(now.Add(-30*time.Minute), 2012, 2000),
	}

	buckets := Aggregate(samples, RangeHour, 5*time.Minute, now)
	if len(buckets) != 1 {
		t.Fatalf("expected only the in-range sample, got %d buckets", len(buckets))
	}
	if buckets[0].MeanPriceA != 2012 {
		t.Fatalf("wrong sample survived the filter: %+v", buckets[0])
	}

	all := Aggregate(samples, RangeAll, 5*time.Minute, now)
	if len(all) != 2 {
		t.Fatalf("range all should keep everything, got %d buckets", len(all))
	}
}

func TestEmptySeriesYieldsEmptyBuckets(t *testing.T) {
	now := time.Now().UTC()
	buckets := Aggregate(nil, RangeAll, 5*time.Minute, now)
	if buckets == nil || len(buckets) != 0 {
		t.Fatalf("empty input must yield an empty non-nil slice, got %#v", buckets)
	}

	old := []recorder.Sample{sampleAt(now.Add(-48*time.Hour), 2010, 2000)}
	buckets = Aggregate(old, RangeHour, 5*time.Minute, now)
	if len(buckets) != 0 {
		t.Fatalf("fully filtered input must yield no buckets, got %d", len(buckets))
	}
}

func TestUnsortedInputIsOrdered(t *testing.T) {
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	samples := []recorder.Sample{
		sampleAt(day.Add(10*time.Minute), 2014, 2000),
		sampleAt(day, 2010, 2000),
	}

	buckets := Aggregate(samples, RangeAll, 5*time.Minute, day.Add(time.Hour))
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if !buckets[0].Start.Before(buckets[1].Start) {
		t.Fatalf("buckets not ascending: %v then %v", buckets[0].Start, buckets[1].Start)
	}
}
