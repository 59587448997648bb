package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshigiri/kensaku/internal/config"
	"github.com/oshigiri/kensaku/internal/embedding"
	"github.com/oshigiri/kensaku/internal/keyword"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/search"
	"github.com/oshigiri/kensaku/internal/storage"
	"github.com/oshigiri/kensaku/internal/vector"
)

// TestIngestThenSearch exercises the full path: ingest a document, wait for
// background embedding, then run a hybrid search against the store-backed
// fallback indexes.
func TestIngestThenSearch(t *testing.T) {
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	embedder := embedding.NewMockEmbedder(8)
	vectorIndex := vector.NewDualIndex(nil, vector.NewStoreSearcher(st))
	keywordIndex := keyword.NewDualIndex(nil, keyword.NewStoreSearcher(st))

	pipeline, err := NewPipeline(st, embedder, vectorIndex, keywordIndex, testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pipeline.Close() })

	ctx := context.Background()
	receipt, err := pipeline.Ingest(ctx, &models.IngestInput{
		Title:        "languages",
		Content:      []byte("Python is a programming language. JavaScript is used for web development."),
		ChunkSize:    50,
		ChunkOverlap: 10,
	})
	require.NoError(t, err)
	assert.False(t, receipt.Deduplicated)
	require.Equal(t, 2, receipt.ChunkCount)
	pipeline.Wait()

	engine := search.NewEngine(st, embedder, vectorIndex, keywordIndex, &config.SearchConfig{
		CandidateMultiplier: 3,
		RRFK:                60,
		Timeout:             5 * time.Second,
	}, nil)

	resp, err := engine.Search(ctx, &models.SearchQuery{
		Query:      "programming language",
		MaxResults: 5,
		MinScore:   0.3,
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)

	// The first sentence lives in the first chunk; with a keyword match on
	// top of its semantic rank it must fuse to the top.
	top := resp.Results[0]
	assert.Contains(t, top.Excerpt, "programming language")
	assert.Equal(t, receipt.DocumentID, top.DocumentID)
	assert.Equal(t, "languages", top.Title)
	assert.Equal(t, models.SourceHybrid, top.Source)
	assert.GreaterOrEqual(t, top.Score, 0.3)

	empty, err := engine.Search(ctx, &models.SearchQuery{Query: ""})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Results)
}
