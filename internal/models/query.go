package models

import "time"

// SearchType selects which retrieval paths participate in a search.
type SearchType string

const (
	SearchTypeSemantic SearchType = "semantic"
	SearchTypeKeyword  SearchType = "keyword"
	SearchTypeHybrid   SearchType = "hybrid"
)

// Default fusion weights. They need not sum to 1, only to a positive total.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// SearchQuery represents a search request.
type SearchQuery struct {
	Query          string        `json:"query"`
	MaxResults     int           `json:"max_results,omitempty"`
	MinScore       float64       `json:"min_score,omitempty"`
	Type           SearchType    `json:"search_type,omitempty"`
	SemanticWeight float64       `json:"semantic_weight,omitempty"`
	KeywordWeight  float64       `json:"keyword_weight,omitempty"`
	Timeout        time.Duration `json:"-"`
}

// Validate normalizes the query in place and rejects invalid fields.
// An empty query string is allowed; the engine answers it with zero results.
func (q *SearchQuery) Validate() error {
	if q.MaxResults < 0 {
		return &ValidationError{Field: "max_results", Reason: "must not be negative"}
	}
	if q.MaxResults == 0 {
		q.MaxResults = 10
	}
	if q.MaxResults > 100 {
		q.MaxResults = 100
	}
	if q.MinScore < 0 {
		return &ValidationError{Field: "min_score", Reason: "must not be negative"}
	}
	switch q.Type {
	case "":
		q.Type = SearchTypeHybrid
	case SearchTypeSemantic, SearchTypeKeyword, SearchTypeHybrid:
	default:
		return &ValidationError{Field: "search_type", Reason: "must be semantic, keyword, or hybrid"}
	}
	if q.SemanticWeight < 0 || q.KeywordWeight < 0 {
		return &ValidationError{Field: "weights", Reason: "must not be negative"}
	}
	if q.SemanticWeight == 0 && q.KeywordWeight == 0 {
		q.SemanticWeight = DefaultSemanticWeight
		q.KeywordWeight = DefaultKeywordWeight
	}
	return nil
}
