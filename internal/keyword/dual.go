package keyword

import (
	"context"

	"github.com/oshigiri/kensaku/internal/models"
	"go.uber.org/zap"
)

// DualIndex routes reads to the primary Bleve index and falls back to the
// store scan when the primary errors or is disabled (nil). Writes go to the
// primary only.
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

// NewDualIndex creates a two-path index. primary may be nil; fallback must not be.
func NewDualIndex(primary, fallback Index, opts ...DualOption) *DualIndex {
	d := &DualIndex{primary: primary, fallback: fallback}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add indexes into the primary when enabled.
func (d *DualIndex) Add(ctx context.Context, chunks []*models.Chunk) error {
	if d.primary == nil {
		return nil
	}
	return d.primary.Add(ctx, chunks)
}

// Remove deletes from the primary when enabled.
func (d *DualIndex) Remove(ctx context.Context, chunkIDs []string) error {
	if d.primary == nil {
		return nil
	}
	return d.primary.Remove(ctx, chunkIDs)
}

// Search tries the primary index, then the fallback.
func (d *DualIndex) Search(ctx context.Context, query string, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	if d.primary != nil {
		candidates, err := d.primary.Search(ctx, query, limit, minScore)
		if err == nil {
			return candidates, nil
		}
		if d.logger != nil {
			d.logger.Warn("primary keyword search failed, using store fallback", zap.Error(err))
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
