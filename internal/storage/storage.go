// Package storage defines the persistence interface for documents, chunks, and embeddings.
package storage

import (
	"context"

	"github.com/oshigiri/kensaku/internal/models"
)

// Storage is the durable source of truth. The search indexes are derived from
// it and can be rebuilt at any time. Implementations enforce the content-digest
// and (document_id, chunk_index) uniqueness invariants transactionally.
type Storage interface {
	// CreateDocumentWithChunks persists a document and its chunks atomically.
	// This is the synchronous phase of ingestion: either everything commits or
	// nothing does.
	CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// FindDocumentByDigest returns the live (non-deleted) document with the
	// given content digest, or models.ErrNotFound.
	FindDocumentByDigest(ctx context.Context, digest string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	// ListDocumentsBySource returns live documents whose metadata records the
	// given source path (used by the directory watcher).
	ListDocumentsBySource(ctx context.Context, sourcePath string) ([]*models.Document, error)
	SoftDeleteDocument(ctx context.Context, id string) error

	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	// ForEachChunk streams every chunk of every live document. Used by the
	// keyword fallback scorer and index rebuild.
	ForEachChunk(ctx context.Context, fn func(*models.Chunk) error) error

	// UpsertEmbedding replaces a chunk's embedding wholesale.
	UpsertEmbedding(ctx context.Context, emb *models.Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*models.Embedding, error)
	// ForEachEmbedding streams every embedded chunk of every live document.
	// Used by the vector fallback brute-force scan and index rebuild.
	ForEachEmbedding(ctx context.Context, fn func(*models.Chunk, *models.Embedding) error) error
	// ListChunksWithoutEmbedding returns chunks of live documents that have no
	// stored embedding yet (pending or failed background work).
	ListChunksWithoutEmbedding(ctx context.Context, limit int) ([]*models.Chunk, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountEmbeddings(ctx context.Context) (int64, error)

	Close() error
}
