package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oshigiri/kensaku/internal/config"
	"github.com/oshigiri/kensaku/internal/models"
)

// fakeStore serves chunk and document lookups for result hydration.
type fakeStore struct {
	chunks map[string]*models.Chunk
	docs   map[string]*models.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{chunks: map[string]*models.Chunk{}, docs: map[string]*models.Document{}}
}

func (s *fakeStore) add(chunkID, docID, content string) {
	s.chunks[chunkID] = &models.Chunk{ID: chunkID, DocumentID: docID, Content: content}
	if _, ok := s.docs[docID]; !ok {
		s.docs[docID] = &models.Document{ID: docID, Title: "doc " + docID}
	}
}

func (s *fakeStore) CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	return nil
}

func (s *fakeStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := s.docs[id]; ok {
		return d, nil
	}
	return nil, models.ErrNotFound
}

func (s *fakeStore) FindDocumentByDigest(ctx context.Context, digest string) (*models.Document, error) {
	return nil, models.ErrNotFound
}

func (s *fakeStore) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	return nil, nil
}

func (s *fakeStore) ListDocumentsBySource(ctx context.Context, sourcePath string) ([]*models.Document, error) {
	return nil, nil
}

func (s *fakeStore) SoftDeleteDocument(ctx context.Context, id string) error { return nil }

func (s *fakeStore) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	if c, ok := s.chunks[id]; ok {
		return c, nil
	}
	return nil, models.ErrNotFound
}

func (s *fakeStore) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	return nil, nil
}

func (s *fakeStore) ForEachChunk(ctx context.Context, fn func(*models.Chunk) error) error {
	for _, c := range s.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) UpsertEmbedding(ctx context.Context, emb *models.Embedding) error { return nil }

func (s *fakeStore) GetEmbedding(ctx context.Context, chunkID string) (*models.Embedding, error) {
	return nil, models.ErrNotFound
}

func (s *fakeStore) ForEachEmbedding(ctx context.Context, fn func(*models.Chunk, *models.Embedding) error) error {
	return nil
}

func (s *fakeStore) ListChunksWithoutEmbedding(ctx context.Context, limit int) ([]*models.Chunk, error) {
	return nil, nil
}

func (s *fakeStore) CountDocuments(ctx context.Context) (int64, error)  { return 0, nil }
func (s *fakeStore) CountChunks(ctx context.Context) (int64, error)     { return 0, nil }
func (s *fakeStore) CountEmbeddings(ctx context.Context) (int64, error) { return 0, nil }
func (s *fakeStore) Close() error                                       { return nil }

// fakeEmbedder returns a fixed vector, or fails when down.
type fakeEmbedder struct {
	down bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.down {
		return nil, &models.ProviderUnavailableError{Provider: "fake", Err: errors.New("down")}
	}
	return []float32{1, 0, 0}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := e.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fakeEmbedder) Model() string   { return "fake" }
func (e *fakeEmbedder) Dimensions() int { return 3 }
func (e *fakeEmbedder) Close() error    { return nil }

// fakeVectorIndex returns canned candidates, or fails.
type fakeVectorIndex struct {
	candidates []*models.ScoredCandidate
	err        error
}

func (f *fakeVectorIndex) Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error {
	return nil
}
func (f *fakeVectorIndex) Remove(ctx context.Context, chunkIDs []string) error { return nil }
func (f *fakeVectorIndex) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	return f.candidates, f.err
}
func (f *fakeVectorIndex) Close() error { return nil }

// fakeKeywordIndex mirrors fakeVectorIndex for the lexical path.
type fakeKeywordIndex struct {
	candidates []*models.ScoredCandidate
	err        error
}

func (f *fakeKeywordIndex) Add(ctx context.Context, chunks []*models.Chunk) error { return nil }
func (f *fakeKeywordIndex) Remove(ctx context.Context, chunkIDs []string) error   { return nil }
func (f *fakeKeywordIndex) Search(ctx context.Context, query string, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	return f.candidates, f.err
}
func (f *fakeKeywordIndex) Close() error { return nil }

func testSearchConfig() *config.SearchConfig {
	return &config.SearchConfig{CandidateMultiplier: 3, RRFK: 60, Timeout: 5 * time.Second}
}

func TestSearchEmptyQuery(t *testing.T) {
	engine := NewEngine(newFakeStore(), &fakeEmbedder{}, &fakeVectorIndex{}, &fakeKeywordIndex{}, testSearchConfig(), nil)
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: ""})
	if err != nil {
		t.Fatalf("empty query must not error: %v", err)
	}
	if len(resp.Results) != 0 || resp.Degraded {
		t.Errorf("empty query should return zero results and no degradation")
	}
}

func TestSearchHybridMergesBothSources(t *testing.T) {
	store := newFakeStore()
	store.add("c1", "d1", "alpha beta gamma")
	store.add("c2", "d2", "delta epsilon zeta")
	vec := &fakeVectorIndex{candidates: []*models.ScoredCandidate{
		{ChunkID: "c1", DocumentID: "d1", Score: 0.9, Rank: 0, Source: models.SourceSemantic},
		{ChunkID: "c2", DocumentID: "d2", Score: 0.5, Rank: 1, Source: models.SourceSemantic},
	}}
	kw := &fakeKeywordIndex{candidates: []*models.ScoredCandidate{
		{ChunkID: "c1", DocumentID: "d1", Score: 1.0, Rank: 0, Source: models.SourceKeyword},
	}}
	engine := NewEngine(store, &fakeEmbedder{}, vec, kw, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "alpha"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if resp.Degraded {
		t.Error("no backend failed, response must not be degraded")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].ChunkID != "c1" || resp.Results[0].Source != models.SourceHybrid {
		t.Errorf("dual-source chunk should lead tagged hybrid, got %q %q",
			resp.Results[0].ChunkID, resp.Results[0].Source)
	}
	if resp.Results[0].Excerpt == "" || resp.Results[0].Title == "" {
		t.Error("results must be hydrated with excerpt and title")
	}
}

func TestSearchVectorFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.add("c1", "d1", "alpha beta")
	vec := &fakeVectorIndex{err: &models.ProviderUnavailableError{Provider: "vector", Err: errors.New("down")}}
	kw := &fakeKeywordIndex{candidates: []*models.ScoredCandidate{
		{ChunkID: "c1", DocumentID: "d1", Score: 1.0, Rank: 0, Source: models.SourceKeyword},
	}}
	engine := NewEngine(store, &fakeEmbedder{}, vec, kw, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "alpha"})
	if err != nil {
		t.Fatalf("keyword results exist, search must not error: %v", err)
	}
	if !resp.Degraded {
		t.Error("vector failure must mark the response degraded")
	}
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != "c1" {
		t.Errorf("keyword results must still be returned, got %v", resp.Results)
	}
}

func TestSearchEmbeddingFailureFallsBackToKeyword(t *testing.T) {
	store := newFakeStore()
	store.add("c1", "d1", "alpha beta")
	kw := &fakeKeywordIndex{candidates: []*models.ScoredCandidate{
		{ChunkID: "c1", DocumentID: "d1", Score: 1.0, Rank: 0, Source: models.SourceKeyword},
	}}
	engine := NewEngine(store, &fakeEmbedder{down: true}, &fakeVectorIndex{}, kw, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "alpha"})
	if err != nil {
		t.Fatalf("keyword-only dispatch must succeed: %v", err)
	}
	if !resp.Degraded {
		t.Error("embedding failure must mark the response degraded")
	}
	if len(resp.Results) != 1 || resp.Results[0].Source != models.SourceKeyword {
		t.Errorf("expected keyword-derived results, got %v", resp.Results)
	}
}

func TestSearchAllBackendsFail(t *testing.T) {
	vec := &fakeVectorIndex{err: errors.New("vector down")}
	kw := &fakeKeywordIndex{err: errors.New("keyword down")}
	engine := NewEngine(newFakeStore(), &fakeEmbedder{down: true}, vec, kw, testSearchConfig(), nil)

	_, err := engine.Search(context.Background(), &models.SearchQuery{Query: "alpha"})
	if !errors.Is(err, models.ErrAllBackendsUnavailable) {
		t.Fatalf("expected ErrAllBackendsUnavailable, got %v", err)
	}
}

func TestSearchSemanticOnlyKeepsSourceScores(t *testing.T) {
	store := newFakeStore()
	store.add("c1", "d1", "alpha")
	vec := &fakeVectorIndex{candidates: []*models.ScoredCandidate{
		{ChunkID: "c1", DocumentID: "d1", Score: 0.87, Rank: 0, Source: models.SourceSemantic},
	}}
	engine := NewEngine(store, &fakeEmbedder{}, vec, &fakeKeywordIndex{}, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{
		Query: "alpha", Type: models.SearchTypeSemantic,
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Score != 0.87 {
		t.Errorf("semantic-only search must keep cosine scores, got %v", resp.Results)
	}
}
