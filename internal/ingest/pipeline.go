// Package ingest coordinates document ingestion: dedupe by content digest,
// deterministic chunking, atomic persistence, and background embedding plus
// index publication.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/oshigiri/kensaku/internal/chunker"
	"github.com/oshigiri/kensaku/internal/config"
	"github.com/oshigiri/kensaku/internal/embedding"
	"github.com/oshigiri/kensaku/internal/keyword"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/storage"
	"github.com/oshigiri/kensaku/internal/vector"
)

// backgroundJobTimeout bounds one embed-and-publish job. Jobs run detached
// from the ingest caller's context, so they need their own deadline.
const backgroundJobTimeout = 2 * time.Minute

// Pipeline runs ingestion. The synchronous phase (hash, dedupe, chunk,
// persist document+chunks) completes before Ingest returns; embedding and
// index publication happen on a bounded worker pool afterward. A just-ingested
// chunk may be invisible to search until its background job completes.
type Pipeline struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	config       *config.Config
	pool         *ants.Pool
	logger       *zap.Logger

	wg         sync.WaitGroup
	queued     atomic.Int64
	failedJobs atomic.Int64
}

// NewPipeline creates an ingestion pipeline with a worker pool of
// cfg.Ingest.Workers goroutines.
func NewPipeline(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(cfg.Ingest.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pipeline{
		storage:      st,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		config:       cfg,
		pool:         pool,
		logger:       logger,
	}, nil
}

// Ingest validates and persists a document. Byte-identical content returns
// the existing document's receipt with Deduplicated set; nothing new is
// written. Otherwise the document and its chunks commit atomically and a
// background job is queued for embedding and index publication.
func (p *Pipeline) Ingest(ctx context.Context, input *models.IngestInput) (*models.IngestReceipt, error) {
	size, overlap, err := p.resolveChunking(input)
	if err != nil {
		return nil, err
	}

	digest := chunker.Digest(input.Content)
	if existing, err := p.storage.FindDocumentByDigest(ctx, digest); err == nil {
		chunks, err := p.storage.GetChunksByDocumentID(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &models.IngestReceipt{
			DocumentID:   existing.ID,
			ChunkCount:   len(chunks),
			Deduplicated: true,
		}, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:            uuid.New().String(),
		Title:         input.Title,
		ContentDigest: digest,
		ContentLength: len(input.Content),
		ContentType:   input.ContentType,
		Metadata:      input.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	chunks := chunker.NewChunker(size, overlap).Chunk(doc.ID, string(input.Content))

	if err := p.storage.CreateDocumentWithChunks(ctx, doc, chunks); err != nil {
		// A concurrent ingest of identical content can slip between the
		// dedupe lookup and the insert; the digest uniqueness constraint
		// rejects the loser, who returns the winner's receipt.
		if existing, lookupErr := p.storage.FindDocumentByDigest(ctx, digest); lookupErr == nil {
			existingChunks, chunksErr := p.storage.GetChunksByDocumentID(ctx, existing.ID)
			if chunksErr != nil {
				return nil, chunksErr
			}
			return &models.IngestReceipt{
				DocumentID:   existing.ID,
				ChunkCount:   len(existingChunks),
				Deduplicated: true,
			}, nil
		}
		return nil, fmt.Errorf("persist document: %w", err)
	}
	p.enqueue(chunks)

	return &models.IngestReceipt{DocumentID: doc.ID, ChunkCount: len(chunks)}, nil
}

// Delete soft-deletes a document and unpublishes its chunks from both
// indexes. The store rows remain for audit; fallback searches skip them.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	chunks, err := p.storage.GetChunksByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.storage.SoftDeleteDocument(ctx, documentID); err != nil {
		return err
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}
	if err := p.vectorIndex.Remove(ctx, chunkIDs); err != nil {
		p.logger.Warn("vector unpublish failed", zap.String("document_id", documentID), zap.Error(err))
	}
	if err := p.keywordIndex.Remove(ctx, chunkIDs); err != nil {
		p.logger.Warn("keyword unpublish failed", zap.String("document_id", documentID), zap.Error(err))
	}
	return nil
}

// resolveChunking validates the input and applies configured chunking
// defaults and bounds.
func (p *Pipeline) resolveChunking(input *models.IngestInput) (size, overlap int, err error) {
	cfg := p.config.Chunking
	if len(input.Content) < cfg.MinContent {
		return 0, 0, &models.ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("must be at least %d bytes", cfg.MinContent),
		}
	}
	size = input.ChunkSize
	if size == 0 {
		size = cfg.Size
	} else if size < cfg.MinSize || size > cfg.MaxSize {
		return 0, 0, &models.ValidationError{
			Field:  "chunk_size",
			Reason: fmt.Sprintf("must be between %d and %d", cfg.MinSize, cfg.MaxSize),
		}
	}
	overlap = input.ChunkOverlap
	if overlap == 0 {
		overlap = cfg.Overlap
	}
	if overlap < 0 || overlap >= size {
		return 0, 0, &models.ValidationError{
			Field:  "chunk_overlap",
			Reason: "must be non-negative and smaller than chunk_size",
		}
	}
	return size, overlap, nil
}

// enqueue submits chunks for background embedding. If the pool rejects the
// job (released or saturated beyond its queue), the failure is counted so
// RetryPending can pick the chunks up later; the store already holds them.
func (p *Pipeline) enqueue(chunks []*models.Chunk) {
	if len(chunks) == 0 {
		return
	}
	p.wg.Add(1)
	p.queued.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer p.queued.Add(-1)
		p.embedAndPublish(chunks)
	})
	if err != nil {
		p.wg.Done()
		p.queued.Add(-1)
		p.failedJobs.Add(1)
		p.logger.Error("background embed job rejected", zap.Error(err), zap.Int("chunks", len(chunks)))
	}
}

// embedAndPublish is one background job: publish the chunk texts to the
// keyword index, then embed them in batches, store the vectors, and publish
// to the vector index. Keyword publication does not depend on embedding, so
// chunks become lexically searchable even when every provider is down.
func (p *Pipeline) embedAndPublish(chunks []*models.Chunk) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundJobTimeout)
	defer cancel()

	if err := p.keywordIndex.Add(ctx, chunks); err != nil {
		p.logger.Warn("keyword publish failed, store remains authoritative",
			zap.Int("chunks", len(chunks)), zap.Error(err))
	}

	batchSize := p.config.Ingest.BatchSize
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}
		vectors, err := p.embedBatch(ctx, texts)
		if err != nil {
			p.failedJobs.Add(1)
			var mismatch *models.DimensionMismatchError
			if errors.As(err, &mismatch) {
				// Fatal for this input; retrying reproduces the same vector.
				p.logger.Error("embedding dimension mismatch, batch dropped",
					zap.String("model", mismatch.Model), zap.Error(err))
				continue
			}
			p.logger.Warn("embedding batch failed, chunks left pending",
				zap.Int("chunks", len(batch)), zap.Error(err))
			continue
		}

		now := time.Now().UTC()
		for i, ch := range batch {
			emb := &models.Embedding{
				ChunkID:    ch.ID,
				Vector:     vectors[i],
				Model:      p.embedder.Model(),
				Dimensions: p.embedder.Dimensions(),
				CreatedAt:  now,
			}
			if err := p.storage.UpsertEmbedding(ctx, emb); err != nil {
				p.failedJobs.Add(1)
				p.logger.Warn("embedding store failed", zap.String("chunk_id", ch.ID), zap.Error(err))
			}
		}
		if err := p.vectorIndex.Add(ctx, batch, vectors); err != nil {
			p.logger.Warn("vector publish failed, store remains authoritative",
				zap.Int("chunks", len(batch)), zap.Error(err))
		}
	}
}

// embedBatch attempts a batch up to cfg.Ingest.MaxRetries times within the
// job, covering transient provider blips without waiting for an explicit
// retry pass. Dimension mismatches abort immediately.
func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	attempts := p.config.Ingest.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var vectors [][]float32
		vectors, err = p.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		var mismatch *models.DimensionMismatchError
		if errors.As(err, &mismatch) || ctx.Err() != nil {
			return nil, err
		}
		p.logger.Debug("embedding attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, err
}

// QueueDepth returns the number of background jobs queued or running.
func (p *Pipeline) QueueDepth() int64 { return p.queued.Load() }

// FailedJobs returns the number of background failures since startup.
// Failed chunks stay in the store without embeddings and are found again by
// RetryPending.
func (p *Pipeline) FailedJobs() int64 { return p.failedJobs.Load() }

// Wait blocks until all queued background jobs have finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Close drains background work and releases the pool.
func (p *Pipeline) Close() error {
	p.wg.Wait()
	p.pool.Release()
	return nil
}
