package vector

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/oshigiri/kensaku/internal/models"
)

const metaKeyDocumentID = "document_id"

// ChromaIndex is the primary vector path, backed by an external Chroma server.
// Vectors are computed by our embedding chain and passed through; the server
// only stores and ranks them.
type ChromaIndex struct {
	client     chromago.Client
	collection chromago.Collection
}

// NewChromaIndex connects to the Chroma server at url and opens (or creates)
// the named collection, configured for cosine distance so scores convert
// directly to similarities.
func NewChromaIndex(ctx context.Context, url, collectionName string) (*ChromaIndex, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(url))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
			),
		),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get or create collection %q: %w", collectionName, err)
	}
	return &ChromaIndex{client: client, collection: collection}, nil
}

// Add publishes chunk vectors with document-id metadata.
func (c *ChromaIndex) Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	for i, ch := range chunks {
		meta := chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(metaKeyDocumentID, ch.DocumentID),
			chromago.NewIntAttribute("chunk_index", int64(ch.Index)),
		)
		err := c.collection.Add(ctx,
			chromago.WithIDs(chromago.DocumentID(ch.ID)),
			chromago.WithTexts(ch.Content),
			chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vectors[i])),
			chromago.WithMetadatas(meta),
		)
		if err != nil {
			return fmt.Errorf("add chunk %s: %w", ch.ID, err)
		}
	}
	return nil
}

// Remove unpublishes chunk vectors by ID.
func (c *ChromaIndex) Remove(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]chromago.DocumentID, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = chromago.DocumentID(id)
	}
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(ids...)); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Search queries the collection and converts cosine distances to similarity scores.
func (c *ChromaIndex) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chromago.WithNResults(limit),
	)
	if err != nil {
		return nil, &models.ProviderUnavailableError{Provider: "chroma", Err: err}
	}

	idGroups := results.GetIDGroups()
	distGroups := results.GetDistancesGroups()
	metaGroups := results.GetMetadatasGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	ids := idGroups[0]
	candidates := make([]*models.ScoredCandidate, 0, len(ids))
	for i, id := range ids {
		// Cosine distance is 1 - similarity.
		score := 1.0
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			score = 1.0 - float64(distGroups[0][i])
		}
		if score < 0 {
			score = 0
		}
		if score < minScore {
			continue
		}
		docID := ""
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			if v, ok := metaGroups[0][i].GetString(metaKeyDocumentID); ok {
				docID = v
			}
		}
		candidates = append(candidates, &models.ScoredCandidate{
			ChunkID:    string(id),
			DocumentID: docID,
			Score:      score,
			Rank:       len(candidates),
			Source:     models.SourceSemantic,
		})
	}
	return candidates, nil
}

// Close releases the underlying HTTP client.
func (c *ChromaIndex) Close() error {
	return c.client.Close()
}
