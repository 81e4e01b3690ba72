package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"divergence-watch/internal/recorder"
)

const defaultRedisKey = "divwatch:series"

// RedisOptions configure the Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxBytes int64
}

// RedisStore keeps the series as one JSON snapshot under a single key,
// mirroring the blob semantics of the file store.
type RedisStore struct {
	client   *redis.Client
	key      string
	maxBytes int64
	logger   zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("storage: redis addr is required")
	}
	if opts.Key == "" {
		opts.Key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client:   client,
		key:      opts.Key,
		maxBytes: opts.MaxBytes,
		logger:   logger.With().Str("component", "redis_store").Logger(),
	}, nil
}

// Load reads the snapshot; a missing key is an empty series.
func (r *RedisStore) Load(ctx context.Context) ([]recorder.Sample, error) {
	payload, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read series key: %w", err)
	}
	return decodeSamples(payload)
}

// Save replaces the snapshot.
func (r *RedisStore) Save(ctx context.Context, samples []recorder.Sample) error {
	payload, err := encodeSamples(samples)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	if r.maxBytes > 0 && int64(len(payload)) > r.maxBytes {
		return fmt.Errorf("%w: %d bytes over %d byte quota", recorder.ErrQuotaExceeded, len(payload), r.maxBytes)
	}
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("write series key: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ recorder.Store = (*RedisStore)(nil)
