// Package embedding provides text embedding via HTTP inference providers,
// with an ordered fallback chain and a read-through cache.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations declare their
// output dimension; every returned vector has exactly that length and only
// finite components.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
	Close() error
}
