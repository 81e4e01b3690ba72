package aggregate

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testBuckets() []Bucket {
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return []Bucket{
		{Start: day, MeanPriceA: 2010, MeanPriceB: 2000, Difference: 10, HigherAMagnitude: 10, SampleCount: 2},
		{Start: day.Add(5 * time.Minute), MeanPriceA: 2000, MeanPriceB: 2020, Difference: -20, HigherBMagnitude: 20, SampleCount: 1},
	}
}

func TestMaxSpread(t *testing.T) {
	if got := MaxSpread(testBuckets()); !almostEqual(got, 24) {
		t.Fatalf("max spread: want 24, got %f", got)
	}

	// Near-zero spreads get a floor so charts keep a visible scale.
	flat := []Bucket{{HigherAMagnitude: 0.5}}
	if got := MaxSpread(flat); !almostEqual(got, 6) {
		t.Fatalf("floored max spread: want 6, got %f", got)
	}
	if got := MaxSpread(nil); !almostEqual(got, 6) {
		t.Fatalf("empty max spread: want 6, got %f", got)
	}
}

func TestPriceBounds(t *testing.T) {
	buckets := testBuckets()
	if got := MaxPrice(buckets); !almostEqual(got, 2020*1.02) {
		t.Fatalf("max price: want %f, got %f", 2020*1.02, got)
	}
	if got := MinPrice(buckets, ChartPrices); !almostEqual(got, 2000*0.98) {
		t.Fatalf("min price: want %f, got %f", 2000*0.98, got)
	}

	// Spread-style charts anchor at zero.
	if got := MinPrice(buckets, ChartSpread); got != 0 {
		t.Fatalf("spread chart min should be 0, got %f", got)
	}
}

func TestSeriesProjections(t *testing.T) {
	buckets := testBuckets()

	spread := SpreadSeries(buckets)
	if len(spread) != 2 || !almostEqual(spread[0].Spread, 10) || !almostEqual(spread[1].Spread, 20) {
		t.Fatalf("wrong spread series: %+v", spread)
	}
	if spread[0].SampleCount != 2 {
		t.Fatalf("sample count lost in projection: %+v", spread[0])
	}

	sideBySide := SideBySideSeries(buckets)
	if !almostEqual(sideBySide[0].HigherAMagnitude, 10) || !almostEqual(sideBySide[0].HigherBMagnitude, 0) {
		t.Fatalf("wrong side-by-side first bucket: %+v", sideBySide[0])
	}
	if !almostEqual(sideBySide[1].HigherBMagnitude, 20) {
		t.Fatalf("wrong side-by-side second bucket: %+v", sideBySide[1])
	}

	prices := PriceSeries(buckets)
	if !almostEqual(prices[1].MeanPriceA, 2000) || !almostEqual(prices[1].MeanPriceB, 2020) {
		t.Fatalf("wrong price series: %+v", prices[1])
	}
}
