// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oshigiri/kensaku/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	// busy_timeout makes concurrent writers queue on the write lock instead
	// of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		content_digest TEXT NOT NULL,
		content_length INTEGER NOT NULL,
		content_type TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_live_digest
		ON documents(content_digest) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		token_count INTEGER NOT NULL,
		content_digest TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocumentWithChunks inserts the document and all its chunks in one transaction.
func (s *SQLiteStorage) CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, content_digest, content_length, content_type, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.ContentDigest, doc.ContentLength, doc.ContentType,
		string(metadataJSON), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, content, start_offset, end_offset, token_count, content_digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, ch := range chunks {
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Index, ch.Content,
			ch.StartOffset, ch.EndOffset, ch.TokenCount, ch.ContentDigest, ch.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.Index, err)
		}
	}
	return tx.Commit()
}

// GetDocument returns the document by id, including soft-deleted ones.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content_digest, content_length, content_type, metadata, created_at, updated_at, deleted_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// FindDocumentByDigest returns the live document with the given digest.
func (s *SQLiteStorage) FindDocumentByDigest(ctx context.Context, digest string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content_digest, content_length, content_type, metadata, created_at, updated_at, deleted_at
		 FROM documents WHERE content_digest = ? AND deleted_at IS NULL`, digest)
	return scanDocument(row)
}

// ListDocuments returns live documents ordered by creation time, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content_digest, content_length, content_type, metadata, created_at, updated_at, deleted_at
		 FROM documents WHERE deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListDocumentsBySource returns live documents with metadata source_path equal to sourcePath.
func (s *SQLiteStorage) ListDocumentsBySource(ctx context.Context, sourcePath string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content_digest, content_length, content_type, metadata, created_at, updated_at, deleted_at
		 FROM documents
		 WHERE deleted_at IS NULL AND json_extract(metadata, '$.source_path') = ?`, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("list documents by source: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// SoftDeleteDocument marks the document deleted. Chunks and embeddings remain
// stored but stop participating in search and digest uniqueness.
func (s *SQLiteStorage) SoftDeleteDocument(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetChunk returns the chunk by id.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, content, start_offset, end_offset, token_count, content_digest, created_at
		 FROM chunks WHERE id = ?`, id)
	ch, err := scanChunk(row)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// GetChunksByDocumentID returns the document's chunks ordered by index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, start_offset, end_offset, token_count, content_digest, created_at
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	var chunks []*models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// ForEachChunk streams chunks of live documents to fn. fn returning an error stops the scan.
func (s *SQLiteStorage) ForEachChunk(ctx context.Context, fn func(*models.Chunk) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.start_offset, c.end_offset, c.token_count, c.content_digest, c.created_at
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE d.deleted_at IS NULL
		 ORDER BY c.document_id, c.chunk_index`)
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(ch); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpsertEmbedding stores or wholesale-replaces a chunk's embedding.
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, emb *models.Embedding) error {
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (chunk_id, vector, model, dimensions, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector,
			model = excluded.model, dimensions = excluded.dimensions, created_at = excluded.created_at`,
		emb.ChunkID, encodeVector(emb.Vector), emb.Model, emb.Dimensions, emb.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the embedding for chunkID.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*models.Embedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, vector, model, dimensions, created_at FROM embeddings WHERE chunk_id = ?`, chunkID)
	var emb models.Embedding
	var blob []byte
	if err := row.Scan(&emb.ChunkID, &blob, &emb.Model, &emb.Dimensions, &emb.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	emb.Vector = decodeVector(blob)
	return &emb, nil
}

// ForEachEmbedding streams embedded chunks of live documents to fn.
func (s *SQLiteStorage) ForEachEmbedding(ctx context.Context, fn func(*models.Chunk, *models.Embedding) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.start_offset, c.end_offset, c.token_count, c.content_digest, c.created_at,
			e.chunk_id, e.vector, e.model, e.dimensions, e.created_at
		 FROM embeddings e
		 JOIN chunks c ON c.id = e.chunk_id
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.deleted_at IS NULL`)
	if err != nil {
		return fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ch models.Chunk
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Index, &ch.Content, &ch.StartOffset, &ch.EndOffset,
			&ch.TokenCount, &ch.ContentDigest, &ch.CreatedAt,
			&emb.ChunkID, &blob, &emb.Model, &emb.Dimensions, &emb.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan embedding row: %w", err)
		}
		emb.Vector = decodeVector(blob)
		if err := fn(&ch, &emb); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListChunksWithoutEmbedding returns up to limit chunks of live documents with no stored embedding.
func (s *SQLiteStorage) ListChunksWithoutEmbedding(ctx context.Context, limit int) ([]*models.Chunk, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.start_offset, c.end_offset, c.token_count, c.content_digest, c.created_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 LEFT JOIN embeddings e ON e.chunk_id = c.id
		 WHERE d.deleted_at IS NULL AND e.chunk_id IS NULL
		 ORDER BY c.created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks without embedding: %w", err)
	}
	defer rows.Close()
	var chunks []*models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// CountDocuments returns the number of live documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`)
}

// CountChunks returns the number of chunks belonging to live documents.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	return s.countRow(ctx,
		`SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id WHERE d.deleted_at IS NULL`)
}

// CountEmbeddings returns the number of stored embeddings for live documents.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	return s.countRow(ctx,
		`SELECT COUNT(*) FROM embeddings e
		 JOIN chunks c ON c.id = e.chunk_id
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.deleted_at IS NULL`)
}

func (s *SQLiteStorage) countRow(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var metadataJSON sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.Title, &doc.ContentDigest, &doc.ContentLength, &doc.ContentType,
		&metadataJSON, &doc.CreatedAt, &doc.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		doc.DeletedAt = &t
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*models.Document, error) {
	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var ch models.Chunk
	err := row.Scan(&ch.ID, &ch.DocumentID, &ch.Index, &ch.Content, &ch.StartOffset, &ch.EndOffset,
		&ch.TokenCount, &ch.ContentDigest, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return &ch, nil
}

// encodeVector packs a float32 vector into a little-endian blob.
func encodeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(x))
	}
	return out
}

// decodeVector unpacks a little-endian blob into a float32 vector.
func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
