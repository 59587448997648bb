package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oshigiri/kensaku/internal/config"
	"github.com/oshigiri/kensaku/internal/embedding"
	"github.com/oshigiri/kensaku/internal/keyword"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/storage"
	"github.com/oshigiri/kensaku/internal/vector"
)

// Engine coordinates a search: embed the query, dispatch vector and keyword
// retrieval in parallel, fuse, filter, and hydrate excerpts. A backend
// failure degrades the response instead of failing it; the engine errors only
// when no path produced usable output.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	config       *config.SearchConfig
	logger       *zap.Logger
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		storage:      st,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		config:       cfg,
		logger:       logger,
	}
}

// Search answers a query. An empty query string returns zero results and no
// error. The returned response carries Degraded=true when any backend was
// skipped; models.ErrAllBackendsUnavailable is returned only when every
// enabled path failed.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}
	response := &models.SearchResponse{
		Results: []*models.SearchResult{},
		Query:   query.Query,
	}
	if query.Query == "" {
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}

	timeout := query.Timeout
	if timeout <= 0 {
		timeout = e.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wantSemantic := query.Type != models.SearchTypeKeyword && query.SemanticWeight > 0
	wantKeyword := query.Type != models.SearchTypeSemantic && query.KeywordWeight > 0

	var degradedReasons []string
	degrade := func(capability string, err error) {
		e.logger.Warn("search capability degraded",
			zap.String("capability", capability), zap.Error(err))
		degradedReasons = append(degradedReasons, fmt.Sprintf("%s: %v", capability, err))
	}

	var queryVector []float32
	if wantSemantic {
		vec, err := e.embedder.Embed(ctx, query.Query)
		if err != nil {
			wantSemantic = false
			degrade("embedding", err)
		} else {
			queryVector = vec
		}
	}
	if !wantSemantic && !wantKeyword {
		return nil, models.ErrAllBackendsUnavailable
	}

	// Each source over-fetches so fusion has enough material to re-rank.
	fetchLimit := query.MaxResults * e.config.CandidateMultiplier
	if fetchLimit < query.MaxResults {
		fetchLimit = query.MaxResults
	}
	// Hybrid applies the score floor to the fused, normalized scores; only
	// single-source searches can push it down to the backend.
	sourceMinScore := query.MinScore
	if query.Type == models.SearchTypeHybrid {
		sourceMinScore = 0
	}

	var (
		semanticResults []*models.ScoredCandidate
		keywordResults  []*models.ScoredCandidate
		semanticErr     error
		keywordErr      error
		wg              sync.WaitGroup
	)
	if wantSemantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semanticResults, semanticErr = e.vectorIndex.Search(ctx, queryVector, fetchLimit, sourceMinScore)
		}()
	}
	if wantKeyword {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keywordResults, keywordErr = e.keywordIndex.Search(ctx, query.Query, fetchLimit, sourceMinScore)
		}()
	}
	wg.Wait()

	if semanticErr != nil {
		semanticResults = nil
		degrade("vector search", semanticErr)
	}
	if keywordErr != nil {
		keywordResults = nil
		degrade("keyword search", keywordErr)
	}
	if (!wantSemantic || semanticErr != nil) && (!wantKeyword || keywordErr != nil) {
		return nil, models.ErrAllBackendsUnavailable
	}

	var fused []*models.SearchResult
	switch query.Type {
	case models.SearchTypeSemantic:
		fused = resultsFromCandidates(semanticResults, query.MaxResults)
	case models.SearchTypeKeyword:
		fused = resultsFromCandidates(keywordResults, query.MaxResults)
	default:
		fused = FuseRRF(semanticResults, keywordResults,
			query.SemanticWeight, query.KeywordWeight,
			query.MinScore, query.MaxResults, e.config.RRFK)
	}

	for _, result := range fused {
		chunk, err := e.storage.GetChunk(ctx, result.ChunkID)
		if err != nil {
			continue
		}
		result.Excerpt = BuildExcerpt(chunk.Content, query.Query)
		if doc, err := e.storage.GetDocument(ctx, result.DocumentID); err == nil {
			result.Title = doc.Title
		}
		result.Rank = len(response.Results)
		response.Results = append(response.Results, result)
	}

	response.Total = len(response.Results)
	response.Degraded = len(degradedReasons) > 0
	response.DegradedReasons = degradedReasons
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// resultsFromCandidates converts one source's candidates into final results,
// keeping the source's own scores and order.
func resultsFromCandidates(candidates []*models.ScoredCandidate, maxResults int) []*models.SearchResult {
	results := make([]*models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
		results = append(results, &models.SearchResult{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Score:      c.Score,
			Source:     c.Source,
			Rank:       len(results),
		})
	}
	return results
}
