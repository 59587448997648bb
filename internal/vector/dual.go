package vector

import (
	"context"

	"github.com/oshigiri/kensaku/internal/models"
	"go.uber.org/zap"
)

// DualIndex routes reads to the primary engine and falls back to the
// brute-force store scan when the primary errors or is disabled (nil).
// Writes go to the primary only; the store is populated by the ingestion
// pipeline and the fallback reads it directly.
type DualIndex struct {
	primary  Index
	fallback Index
	logger   *zap.Logger
}

// DualOption configures a DualIndex.
type DualOption func(*DualIndex)

// WithLogger sets a logger for recording primary-path failures.
func WithLogger(l *zap.Logger) DualOption {
	return func(d *DualIndex) { d.logger = l }
}

// NewDualIndex creates a two-path index. primary may be nil (engine disabled);
// fallback must not be.
func NewDualIndex(primary, fallback Index, opts ...DualOption) *DualIndex {
	d := &DualIndex{primary: primary, fallback: fallback}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add publishes to the primary engine when enabled. Publication failures are
// reported to the caller so background jobs can record them; the store remains
// authoritative either way.
func (d *DualIndex) Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error {
	if d.primary == nil {
		return nil
	}
	return d.primary.Add(ctx, chunks, vectors)
}

// Remove unpublishes from the primary engine when enabled.
func (d *DualIndex) Remove(ctx context.Context, chunkIDs []string) error {
	if d.primary == nil {
		return nil
	}
	return d.primary.Remove(ctx, chunkIDs)
}

// Search tries the primary engine, then the fallback.
func (d *DualIndex) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	if d.primary != nil {
		candidates, err := d.primary.Search(ctx, query, limit, minScore)
		if err == nil {
			return candidates, nil
		}
		if d.logger != nil {
			d.logger.Warn("primary vector search failed, using store fallback", zap.Error(err))
		}
	}
	return d.fallback.Search(ctx, query, limit, minScore)
}

// Close closes both paths, returning the first error.
func (d *DualIndex) Close() error {
	var first error
	if d.primary != nil {
		if err := d.primary.Close(); err != nil {
			first = err
		}
	}
	if err := d.fallback.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
