package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"divergence-watch/internal/recorder"
)

// FileStore persists the series as a single JSON document on disk. A byte
// quota models bounded blob storage: writes over the quota fail with
// recorder.ErrQuotaExceeded so the recorder can evict and retry.
type FileStore struct {
	path     string
	maxBytes int64
	logger   zerolog.Logger
}

// NewFileStore builds a file-backed store. maxBytes <= 0 disables the quota.
func NewFileStore(path string, maxBytes int64, logger zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: file path is required")
	}
	return &FileStore{
		path:     path,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "file_store").Logger(),
	}, nil
}

// Load reads the series; a missing file is an empty series.
func (f *FileStore) Load(ctx context.Context) ([]recorder.Sample, error) {
	payload, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read series file: %w", err)
	}
	return decodeSamples(payload)
}

// Save writes the series atomically via a temp file and rename.
func (f *FileStore) Save(ctx context.Context, samples []recorder.Sample) error {
	payload, err := encodeSamples(samples)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}

	if f.maxBytes > 0 && int64(len(payload)) > f.maxBytes {
		return fmt.Errorf("%w: %d bytes over %d byte quota", recorder.ErrQuotaExceeded, len(payload), f.maxBytes)
	}

	dir := filepath.Dir(f.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create series dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".series-*.json")
	if err != nil {
		return fmt.Errorf("create temp series file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write series file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close series file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace series file: %w", err)
	}
	return nil
}

var _ recorder.Store = (*FileStore)(nil)
