package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshigiri/kensaku/internal/config"
	"github.com/oshigiri/kensaku/internal/embedding"
	"github.com/oshigiri/kensaku/internal/keyword"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/storage"
	"github.com/oshigiri/kensaku/internal/vector"
)

// flakyEmbedder fails its next failures calls, then behaves like the mock.
type flakyEmbedder struct {
	*embedding.MockEmbedder
	failures atomic.Int64
}

func (f *flakyEmbedder) failNext(n int64) { f.failures.Store(n) }

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("provider down")
	}
	return f.MockEmbedder.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("provider down")
	}
	return f.MockEmbedder.EmbedBatch(ctx, texts)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func newTestPipeline(t *testing.T, embedder embedding.Embedder) (*Pipeline, *storage.SQLiteStorage) {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	vectorIndex := vector.NewDualIndex(nil, vector.NewStoreSearcher(st))
	keywordIndex := keyword.NewDualIndex(nil, keyword.NewStoreSearcher(st))
	p, err := NewPipeline(st, embedder, vectorIndex, keywordIndex, testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, st
}

func TestIngestAndDeduplicate(t *testing.T) {
	p, st := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	input := &models.IngestInput{
		Title:   "notes",
		Content: []byte("Go favors composition over inheritance. Interfaces are satisfied implicitly."),
	}
	first, err := p.Ingest(ctx, input)
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.NotEmpty(t, first.DocumentID)
	require.Equal(t, 1, first.ChunkCount)

	second, err := p.Ingest(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)

	n, err := st.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestIngestValidation(t *testing.T) {
	p, _ := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	var verr *models.ValidationError

	_, err := p.Ingest(ctx, &models.IngestInput{Content: []byte("tiny")})
	assert.ErrorAs(t, err, &verr)

	_, err = p.Ingest(ctx, &models.IngestInput{
		Content:   []byte("long enough content for chunking checks"),
		ChunkSize: 5,
	})
	assert.ErrorAs(t, err, &verr)

	_, err = p.Ingest(ctx, &models.IngestInput{
		Content:      []byte("long enough content for chunking checks"),
		ChunkSize:    100,
		ChunkOverlap: 100,
	})
	assert.ErrorAs(t, err, &verr)
}

func TestBackgroundEmbedding(t *testing.T) {
	p, st := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	content := "Vectors are stored asynchronously after the document commits."
	receipt, err := p.Ingest(ctx, &models.IngestInput{Content: []byte(content)})
	require.NoError(t, err)
	p.Wait()

	n, err := st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, receipt.ChunkCount, n)

	pending, err := st.ListChunksWithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The stored vector must match a fresh embedding of the same text.
	queryVec, err := embedding.NewMockEmbedder(8).Embed(ctx, content)
	require.NoError(t, err)
	hits, err := vector.NewStoreSearcher(st).Search(ctx, queryVec, 5, 0.99)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, receipt.DocumentID, hits[0].DocumentID)
}

func TestDeleteUnpublishes(t *testing.T) {
	p, st := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	content := "Deleted documents disappear from every search path at once."
	receipt, err := p.Ingest(ctx, &models.IngestInput{Content: []byte(content)})
	require.NoError(t, err)
	p.Wait()

	require.NoError(t, p.Delete(ctx, receipt.DocumentID))

	doc, err := st.GetDocument(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.True(t, doc.Deleted())

	queryVec, err := embedding.NewMockEmbedder(8).Embed(ctx, content)
	require.NoError(t, err)
	hits, err := vector.NewStoreSearcher(st).Search(ctx, queryVec, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, p.Delete(ctx, "missing"), models.ErrNotFound)
}

func TestRetryPendingAfterRecovery(t *testing.T) {
	flaky := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8)}
	flaky.failNext(1000)
	p, st := newTestPipeline(t, flaky)
	ctx := context.Background()

	content := strings.Repeat("Pending chunks wait for the provider to come back. ", 3)
	receipt, err := p.Ingest(ctx, &models.IngestInput{Content: []byte(content)})
	require.NoError(t, err)
	p.Wait()

	n, err := st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no embeddings while the provider is down")
	assert.Positive(t, p.FailedJobs())

	// Chunks stay lexically searchable through the store fallback.
	hits, err := keyword.NewStoreSearcher(st).Search(ctx, "pending chunks", 5, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	flaky.failNext(0)
	queued, err := p.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipt.ChunkCount, queued)
	p.Wait()

	n, err = st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, receipt.ChunkCount, n)

	queued, err = p.RetryPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued, "nothing left to retry")
}

func TestEmbedBatchRetriesTransientFailures(t *testing.T) {
	flaky := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8)}
	flaky.failNext(2)
	p, st := newTestPipeline(t, flaky)
	ctx := context.Background()

	// Default max_retries is 3: two transient failures recover in-job.
	receipt, err := p.Ingest(ctx, &models.IngestInput{
		Content: []byte("A brief provider blip should not leave chunks pending."),
	})
	require.NoError(t, err)
	p.Wait()

	n, err := st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, receipt.ChunkCount, n)
	assert.Zero(t, p.FailedJobs())
}

// racingStore hides an existing document from the next dedupe lookup, forcing
// the insert to collide with the digest uniqueness constraint.
type racingStore struct {
	storage.Storage
	misses int
}

func (r *racingStore) FindDocumentByDigest(ctx context.Context, digest string) (*models.Document, error) {
	if r.misses > 0 {
		r.misses--
		return nil, models.ErrNotFound
	}
	return r.Storage.FindDocumentByDigest(ctx, digest)
}

func TestIngestLosingDigestRaceDeduplicates(t *testing.T) {
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "race.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	racing := &racingStore{Storage: st}
	vectorIndex := vector.NewDualIndex(nil, vector.NewStoreSearcher(st))
	keywordIndex := keyword.NewDualIndex(nil, keyword.NewStoreSearcher(st))
	p, err := NewPipeline(racing, embedding.NewMockEmbedder(8), vectorIndex, keywordIndex, testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	ctx := context.Background()
	input := &models.IngestInput{Content: []byte("Two writers racing on identical content converge on one document.")}
	first, err := p.Ingest(ctx, input)
	require.NoError(t, err)

	// The lookup misses, the insert collides, and the receipt still points
	// at the winner.
	racing.misses = 1
	second, err := p.Ingest(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)

	n, err := st.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConcurrentIdenticalIngest(t *testing.T) {
	p, st := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	const writers = 8
	input := []byte("Concurrent ingestion of the same bytes must stay idempotent.")
	receipts := make([]*models.IngestReceipt, writers)
	errs := make([]error, writers)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			receipts[i], errs[i] = p.Ingest(ctx, &models.IngestInput{Content: input})
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, receipts[0].DocumentID, receipts[i].DocumentID)
	}
	n, err := st.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRebuildRepopulatesIndexes(t *testing.T) {
	p, st := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	_, err := p.Ingest(ctx, &models.IngestInput{
		Content: []byte("Rebuild re-derives both indexes from the durable store."),
	})
	require.NoError(t, err)
	p.Wait()

	// With nil primaries the rebuild writes are no-ops; it must still walk
	// the store without error.
	require.NoError(t, p.Rebuild(ctx))

	n, err := st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}
