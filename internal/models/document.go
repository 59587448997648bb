// Package models defines core data structures for documents, chunks, queries, and search results.
package models

import "time"

// Document represents an ingested document. The full text is not stored on the
// document itself; chunks carry the text. Documents are immutable after creation
// except for the soft-delete marker. At most one live (non-deleted) document
// exists per content digest.
type Document struct {
	ID            string                 `json:"id" db:"id"`
	Title         string                 `json:"title" db:"title"`
	ContentDigest string                 `json:"content_digest" db:"content_digest"`
	ContentLength int                    `json:"content_length" db:"content_length"`
	ContentType   string                 `json:"content_type" db:"content_type"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time             `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Deleted reports whether the document has been soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}

// Chunk is a contiguous, positioned slice of a document's text, the unit of
// retrieval. (DocumentID, Index) is unique; StartOffset/EndOffset are byte
// positions into the original content and strictly increase with Index.
type Chunk struct {
	ID            string    `json:"id" db:"id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	Index         int       `json:"chunk_index" db:"chunk_index"`
	Content       string    `json:"content" db:"content"`
	StartOffset   int       `json:"start_offset" db:"start_offset"`
	EndOffset     int       `json:"end_offset" db:"end_offset"`
	TokenCount    int       `json:"token_count" db:"token_count"`
	ContentDigest string    `json:"content_digest" db:"content_digest"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Embedding is the stored vector for a chunk, owned 1:1 by that chunk. It is
// created asynchronously after the chunk exists and replaced wholesale when
// regenerated, never partially updated.
type Embedding struct {
	ChunkID    string    `json:"chunk_id" db:"chunk_id"`
	Vector     []float32 `json:"-" db:"-"`
	Model      string    `json:"model" db:"model"`
	Dimensions int       `json:"dimensions" db:"dimensions"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IngestInput is the input for ingesting a document. ChunkSize and ChunkOverlap
// of zero mean "use configured defaults".
type IngestInput struct {
	Title        string                 `json:"title,omitempty"`
	Content      []byte                 `json:"content"`
	ContentType  string                 `json:"content_type,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ChunkSize    int                    `json:"chunk_size,omitempty"`
	ChunkOverlap int                    `json:"chunk_overlap,omitempty"`
}

// IngestReceipt is returned by a successful ingestion. Deduplicated is true when
// the content digest matched an existing live document and ingestion short-circuited.
type IngestReceipt struct {
	DocumentID   string `json:"document_id"`
	ChunkCount   int    `json:"chunk_count"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}
