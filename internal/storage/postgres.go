package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"divergence-watch/internal/recorder"
)

const (
	upsertSampleSQL = `INSERT INTO divergence_samples (
        id,
        observed_at,
        price_a,
        price_b,
        difference,
        abs_difference
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (observed_at) DO UPDATE
    SET
        id             = EXCLUDED.id,
        price_a        = EXCLUDED.price_a,
        price_b        = EXCLUDED.price_b,
        difference     = EXCLUDED.difference,
        abs_difference = EXCLUDED.abs_difference;`

	listSamplesSQL = `SELECT
        id,
        observed_at,
        price_a,
        price_b,
        difference,
        abs_difference
    FROM divergence_samples
    ORDER BY observed_at;`

	pruneSamplesSQL = `DELETE FROM divergence_samples WHERE observed_at < $1;`
)

// PostgresStore persists the series as one row per sample. Save mirrors the
// recorder's eviction by pruning rows older than the oldest sample it is
// given, so the table tracks the in-memory retention window.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_store").Logger(),
	}
}

// Load reads the full series ordered by time.
func (p *PostgresStore) Load(ctx context.Context) ([]recorder.Sample, error) {
	rows, err := p.pool.Query(ctx, listSamplesSQL)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	samples := make([]recorder.Sample, 0)
	for rows.Next() {
		var s recorder.Sample
		var observed time.Time
		if err := rows.Scan(&s.ID, &observed, &s.PriceA, &s.PriceB, &s.Difference, &s.AbsDifference); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.ObservedAt = observed.UTC()
		samples = append(samples, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// Save upserts every sample in one batch, then prunes rows that fell out of
// the series.
func (p *PostgresStore) Save(ctx context.Context, samples []recorder.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	oldest := samples[0].ObservedAt
	for _, s := range samples {
		if s.ObservedAt.Before(oldest) {
			oldest = s.ObservedAt
		}
		batch.Queue(upsertSampleSQL,
			s.ID,
			s.ObservedAt.UTC().Truncate(time.Millisecond),
			s.PriceA,
			s.PriceB,
			s.Difference,
			s.AbsDifference,
		)
	}
	batch.Queue(pruneSamplesSQL, oldest.UTC().Truncate(time.Millisecond))

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save sample batch: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (p *PostgresStore) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

var _ recorder.Store = (*PostgresStore)(nil)
