package aggregate

import "time"

// ChartKind selects a typed chart series shape.
type ChartKind int

const (
	ChartSpread ChartKind = iota
	ChartSideBySide
	ChartPrices
)

// SpreadBucket feeds a single-series absolute spread chart.
type SpreadBucket struct {
	Start       time.Time
	Spread      float64
	SampleCount int
}

// SideBySideBucket feeds a paired bar chart: which exchange was higher, and
// by how much, per bucket. At most one of the two magnitudes is non-zero.
type SideBySideBucket struct {
	Start            time.Time
	HigherAMagnitude float64
	HigherBMagnitude float64
}

// PriceBucket feeds a two-line mean price chart.
type PriceBucket struct {
	Start      time.Time
	MeanPriceA float64
	MeanPriceB float64
}

// SpreadSeries projects buckets into the spread chart shape.
func SpreadSeries(buckets []Bucket) []SpreadBucket {
	out := make([]SpreadBucket, len(buckets))
	for i, b := range buckets {
		spread := b.HigherAMagnitude
		if b.HigherBMagnitude > spread {
			spread = b.HigherBMagnitude
		}
		out[i] = SpreadBucket{Start: b.Start, Spread: spread, SampleCount: b.SampleCount}
	}
	return out
}

// SideBySideSeries projects buckets into the side-by-side chart shape.
func SideBySideSeries(buckets []Bucket) []SideBySideBucket {
	out := make([]SideBySideBucket, len(buckets))
	for i, b := range buckets {
		out[i] = SideBySideBucket{
			Start:            b.Start,
			HigherAMagnitude: b.HigherAMagnitude,
			HigherBMagnitude: b.HigherBMagnitude,
		}
	}
	return out
}

// PriceSeries projects buckets into the mean price chart shape.
func PriceSeries(buckets []Bucket) []PriceBucket {
	out := make([]PriceBucket, len(buckets))
	for i, b := range buckets {
		out[i] = PriceBucket{Start: b.Start, MeanPriceA: b.MeanPriceA, MeanPriceB: b.MeanPriceB}
	}
	return out
}

const (
	spreadFloor   = 5.0
	spreadPadding = 1.2
	pricePadding  = 0.02
)

// MaxSpread returns the padded upper bound for a spread axis. Small or empty
// series get a floor so near-zero spreads still render with visible scale.
func MaxSpread(buckets []Bucket) float64 {
	peak := 0.0
	for _, b := range buckets {
		if b.HigherAMagnitude > peak {
			peak = b.HigherAMagnitude
		}
		if b.HigherBMagnitude > peak {
			peak = b.HigherBMagnitude
		}
	}
	if peak < spreadFloor {
		peak = spreadFloor
	}
	return peak * spreadPadding
}

// MaxPrice returns the padded upper bound for a price axis.
func MaxPrice(buckets []Bucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	peak := buckets[0].MeanPriceA
	for _, b := range buckets {
		if b.MeanPriceA > peak {
			peak = b.MeanPriceA
		}
		if b.MeanPriceB > peak {
			peak = b.MeanPriceB
		}
	}
	return peak * (1 + pricePadding)
}

// MinPrice returns the padded lower bound for a price axis. Spread-style
// charts anchor at zero instead.
func MinPrice(buckets []Bucket, kind ChartKind) float64 {
	if kind != ChartSideBySide && kind != ChartPrices {
		return 0
	}
	if len(buckets) == 0 {
		return 0
	}
	low := buckets[0].MeanPriceA
	for _, b := range buckets {
		if b.MeanPriceA < low {
			low = b.MeanPriceA
		}
		if b.MeanPriceB < low {
			low = b.MeanPriceB
		}
	}
	return low * (1 - pricePadding)
}
