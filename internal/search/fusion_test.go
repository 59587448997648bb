package search

import (
	"testing"

	"github.com/oshigiri/kensaku/internal/models"
)

func semanticList(ids ...string) []*models.ScoredCandidate {
	out := make([]*models.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = &models.ScoredCandidate{ChunkID: id, DocumentID: "doc-" + id, Rank: i, Source: models.SourceSemantic}
	}
	return out
}

func keywordList(ids ...string) []*models.ScoredCandidate {
	out := make([]*models.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = &models.ScoredCandidate{ChunkID: id, DocumentID: "doc-" + id, Rank: i, Source: models.SourceKeyword}
	}
	return out
}

func TestFuseRRFBothSourcesOutrankOne(t *testing.T) {
	// "a" appears in both lists at rank 1; "b" and "c" each appear once at
	// rank 0. Additive accumulation must put "a" on top.
	sem := semanticList("b", "a")
	kw := keywordList("c", "a")
	results := FuseRRF(sem, kw, 0.5, 0.5, 0, 10, 60)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "a" {
		t.Errorf("dual-source item should rank first, got %q", results[0].ChunkID)
	}
	if results[0].Source != models.SourceHybrid {
		t.Errorf("dual-source item should be tagged hybrid, got %q", results[0].Source)
	}
}

func TestFuseRRFSingleSourceDegenerates(t *testing.T) {
	sem := semanticList("a", "b", "c")
	results := FuseRRF(sem, nil, 0.7, 0.3, 0, 10, 60)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].ChunkID != want {
			t.Errorf("position %d: got %q, want %q", i, results[i].ChunkID, want)
		}
		if results[i].Source != models.SourceSemantic {
			t.Errorf("position %d: source %q", i, results[i].Source)
		}
	}
	if results[0].Score != 1.0 {
		t.Errorf("top score should normalize to 1.0, got %f", results[0].Score)
	}
}

func TestFuseRRFTieBreakByBestRank(t *testing.T) {
	// Equal weights, so semantic rank 0 and keyword rank 0 tie on score.
	// The tie must break on best single-source rank, then stay stable.
	sem := semanticList("a", "b")
	kw := keywordList("c", "d")
	results := FuseRRF(sem, kw, 0.5, 0.5, 0, 10, 60)
	if results[0].Score != results[1].Score {
		t.Fatalf("expected a score tie between %q and %q", results[0].ChunkID, results[1].ChunkID)
	}
	if results[2].ChunkID == "a" || results[2].ChunkID == "c" {
		t.Errorf("rank-0 items must precede rank-1 items, got order %q %q %q %q",
			results[0].ChunkID, results[1].ChunkID, results[2].ChunkID, results[3].ChunkID)
	}
}

func TestFuseRRFScoreFloor(t *testing.T) {
	sem := semanticList("a", "b", "c", "d", "e")
	results := FuseRRF(sem, nil, 1.0, 0, 0.99, 10, 60)
	if len(results) != 1 {
		t.Fatalf("only the top normalized score passes 0.99, got %d results", len(results))
	}
	for _, r := range results {
		if r.Score < 0.99 {
			t.Errorf("result %q below floor: %f", r.ChunkID, r.Score)
		}
	}
}

func TestFuseRRFTruncatesToMaxResults(t *testing.T) {
	sem := semanticList("a", "b", "c", "d", "e")
	results := FuseRRF(sem, nil, 0.7, 0.3, 0, 2, 60)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Rank != 0 || results[1].Rank != 1 {
		t.Errorf("ranks must be reassigned after truncation")
	}
}

func TestFuseRRFMonotonicity(t *testing.T) {
	// An item in both lists never scores lower than the same item in one
	// list with the same rank, holding normalization fixed via the top item.
	sem := semanticList("top", "x")
	kw := keywordList("top", "x")
	both := FuseRRF(sem, kw, 0.7, 0.3, 0, 10, 60)
	single := FuseRRF(sem, keywordList("top"), 0.7, 0.3, 0, 10, 60)
	bothScore := findScore(t, both, "x")
	singleScore := findScore(t, single, "x")
	if bothScore < singleScore {
		t.Errorf("dual-source score %f below single-source score %f", bothScore, singleScore)
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	if results := FuseRRF(nil, nil, 0.7, 0.3, 0, 10, 60); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func findScore(t *testing.T, results []*models.SearchResult, chunkID string) float64 {
	t.Helper()
	for _, r := range results {
		if r.ChunkID == chunkID {
			return r.Score
		}
	}
	t.Fatalf("chunk %q not found", chunkID)
	return 0
}
