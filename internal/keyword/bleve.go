package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/oshigiri/kensaku/internal/models"
)

// chunkEntry is the shape indexed per chunk.
type chunkEntry struct {
	Content    string `json:"content"`
	DocumentID string `json:"document_id"`
}

// BleveIndex implements Index using Bleve over per-chunk entries.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused; remove the directory to force a full rebuild after mapping changes.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	entryMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming, so query terms
	// match the exact words stored in chunks.
	contentField.Analyzer = standard.Name
	entryMapping.AddFieldMappingsAt("content", contentField)

	docIDField := bleve.NewKeywordFieldMapping()
	docIDField.Store = true
	entryMapping.AddFieldMappingsAt("document_id", docIDField)

	im.AddDocumentMapping("chunk", entryMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = entryMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Add indexes the chunks in one batch.
func (b *BleveIndex) Add(ctx context.Context, chunks []*models.Chunk) error {
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		entry := chunkEntry{Content: ch.Content, DocumentID: ch.DocumentID}
		if err := batch.Index(ch.ID, entry); err != nil {
			return fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Remove deletes the chunk IDs in one batch.
func (b *BleveIndex) Remove(ctx context.Context, chunkIDs []string) error {
	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Search runs a match query over chunk content. Bleve's raw scores are
// unbounded, so they are normalized to [0,1] by the top hit before the
// minScore filter is applied.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	if limit <= 0 || query == "" {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"document_id"}

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, &models.ProviderUnavailableError{Provider: "bleve", Err: err}
	}
	if len(results.Hits) == 0 {
		return nil, nil
	}

	maxScore := results.Hits[0].Score
	for _, hit := range results.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	candidates := make([]*models.ScoredCandidate, 0, len(results.Hits))
	for _, hit := range results.Hits {
		score := 0.0
		if maxScore > 0 {
			score = hit.Score / maxScore
		}
		if score < minScore {
			continue
		}
		docID, _ := hit.Fields["document_id"].(string)
		candidates = append(candidates, &models.ScoredCandidate{
			ChunkID:    hit.ID,
			DocumentID: docID,
			Score:      score,
			Rank:       len(candidates),
			Source:     models.SourceKeyword,
		})
	}
	return candidates, nil
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
