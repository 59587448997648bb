package models

// SourceType tags which retrieval path produced a result.
type SourceType string

const (
	SourceSemantic SourceType = "semantic"
	SourceKeyword  SourceType = "keyword"
	SourceHybrid   SourceType = "hybrid"
)

// ScoredCandidate is an intermediate ranked hit from a single retrieval path.
// Rank is the 0-based position within that path's own ordering.
type ScoredCandidate struct {
	ChunkID    string
	DocumentID string
	Score      float64
	Rank       int
	Source     SourceType
}

// SearchResult is a single fused search hit.
type SearchResult struct {
	ChunkID    string     `json:"chunk_id"`
	DocumentID string     `json:"document_id"`
	Title      string     `json:"title,omitempty"`
	Excerpt    string     `json:"excerpt"`
	Score      float64    `json:"score"`
	Source     SourceType `json:"source_type"`
	Rank       int        `json:"rank"`
}

// SearchResponse is the response for a search request. Degraded is true when
// at least one backend was unavailable and its contribution was skipped;
// DegradedReasons records each skipped capability for observability.
type SearchResponse struct {
	Results         []*SearchResult `json:"results"`
	Total           int             `json:"total"`
	Degraded        bool            `json:"degraded"`
	DegradedReasons []string        `json:"degraded_reasons,omitempty"`
	QueryTime       int64           `json:"query_time_ms"`
	Query           string          `json:"query"`
}
