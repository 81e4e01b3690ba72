package app

import (
	"testing"
	"time"

	"divergence-watch/internal/aggregate"
)

func bucketsAt(base time.Time, n int) []aggregate.Bucket {
	out := make([]aggregate.Bucket, n)
	for i := range out {
		out[i] = aggregate.Bucket{
			Start:       base.Add(time.Duration(i) * 5 * time.Minute),
			MeanPriceA:  2000 + float64(i),
			MeanPriceB:  2000,
			SampleCount: 1,
		}
	}
	return out
}

func TestDownsampleBuckets(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	buckets := bucketsAt(base, 10)

	got := downsampleBuckets(buckets, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 buckets, got %d", len(got))
	}
	if !got[0].Start.Equal(buckets[0].Start) {
		t.Fatalf("first bucket should survive, got start %v", got[0].Start)
	}
	if !got[3].Start.Equal(buckets[9].Start) {
		t.Fatalf("last bucket should survive, got start %v", got[3].Start)
	}
}

func TestDownsampleBucketsNoOpWhenUnderLimit(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	buckets := bucketsAt(base, 3)

	if got := downsampleBuckets(buckets, 10); len(got) != 3 {
		t.Fatalf("expected buckets unchanged, got %d", len(got))
	}
	if got := downsampleBuckets(buckets, 0); len(got) != 3 {
		t.Fatalf("zero max should disable downsampling, got %d", len(got))
	}
}

func TestDownsampleBucketsToSinglePoint(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	buckets := bucketsAt(base, 3)

	got := downsampleBuckets(buckets, 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(got))
	}
	if !got[0].Start.Equal(buckets[2].Start) {
		t.Fatalf("expected the newest bucket, got start %v", got[0].Start)
	}
}
