package ingest

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oshigiri/kensaku/internal/models"
)

// retryBatchLimit caps how many pending chunks one RetryPending call queues.
const retryBatchLimit = 256

// RetryPending finds chunks of live documents that still have no stored
// embedding and queues them for another background attempt. Returns the
// number of chunks queued. Call it periodically, or after an embedding
// provider recovers.
func (p *Pipeline) RetryPending(ctx context.Context) (int, error) {
	chunks, err := p.storage.ListChunksWithoutEmbedding(ctx, retryBatchLimit)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	p.logger.Info("retrying pending embeddings", zap.Int("chunks", len(chunks)))
	p.enqueue(chunks)
	return len(chunks), nil
}

// Rebuild repopulates both search indexes from the durable store. The store
// is the source of truth; the indexes are derived state, so a corrupted or
// deleted index directory is recovered by a full rebuild. Keyword and vector
// rebuilds run concurrently.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		batch := make([]*models.Chunk, 0, p.config.Ingest.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := p.keywordIndex.Add(gctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			return nil
		}
		err := p.storage.ForEachChunk(gctx, func(ch *models.Chunk) error {
			batch = append(batch, ch)
			if len(batch) >= p.config.Ingest.BatchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
		return flush()
	})

	g.Go(func() error {
		chunks := make([]*models.Chunk, 0, p.config.Ingest.BatchSize)
		vectors := make([][]float32, 0, p.config.Ingest.BatchSize)
		flush := func() error {
			if len(chunks) == 0 {
				return nil
			}
			if err := p.vectorIndex.Add(gctx, chunks, vectors); err != nil {
				return err
			}
			chunks = chunks[:0]
			vectors = vectors[:0]
			return nil
		}
		err := p.storage.ForEachEmbedding(gctx, func(ch *models.Chunk, emb *models.Embedding) error {
			chunks = append(chunks, ch)
			vectors = append(vectors, emb.Vector)
			if len(chunks) >= p.config.Ingest.BatchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	p.logger.Info("index rebuild complete")
	return nil
}
