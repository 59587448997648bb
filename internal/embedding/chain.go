package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshigiri/kensaku/internal/models"
	"go.uber.org/zap"
)

// Chain tries an ordered list of providers until one succeeds. Each attempt's
// failure reason is recorded and logged instead of being discarded. A
// DimensionMismatchError aborts the chain immediately: a malformed vector is a
// provider bug, and retrying the same input elsewhere would store vectors that
// cannot be compared against the rest of the index.
//
// All providers in a chain must declare the same dimension, otherwise vectors
// produced by a fallback provider would be incomparable with stored ones.
type Chain struct {
	providers []Embedder
	logger    *zap.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets a logger for recording per-provider attempt failures.
func WithLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a fallback chain over providers, tried in order.
func NewChain(providers []Embedder, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("embedding chain needs at least one provider")
	}
	want := providers[0].Dimensions()
	for _, p := range providers[1:] {
		if p.Dimensions() != want {
			return nil, fmt.Errorf("provider %s declares dimension %d, chain requires %d",
				p.Model(), p.Dimensions(), want)
		}
	}
	c := &Chain{providers: providers}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Embed tries each provider in order and returns the first successful vector.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.tryEach(ctx, func(ctx context.Context, p Embedder) error {
		v, embedErr := p.Embed(ctx, text)
		if embedErr != nil {
			return embedErr
		}
		vec = v
		return nil
	})
	return vec, err
}

// EmbedBatch tries each provider in order for the whole batch.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := c.tryEach(ctx, func(ctx context.Context, p Embedder) error {
		v, embedErr := p.EmbedBatch(ctx, texts)
		if embedErr != nil {
			return embedErr
		}
		vecs = v
		return nil
	})
	return vecs, err
}

// tryEach runs fn against each provider until one succeeds. On exhaustion the
// collected failure reasons are wrapped in a single ProviderUnavailableError.
func (c *Chain) tryEach(ctx context.Context, fn func(context.Context, Embedder) error) error {
	var attempts []string
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return &models.ProviderUnavailableError{Provider: c.Model(), Err: ctx.Err()}
		}
		err := fn(ctx, p)
		if err == nil {
			return nil
		}
		var dim *models.DimensionMismatchError
		if errors.As(err, &dim) {
			return err
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", p.Model(), err))
		if c.logger != nil {
			c.logger.Warn("embedding provider failed, trying next",
				zap.String("provider", p.Model()),
				zap.Error(err),
			)
		}
	}
	return &models.ProviderUnavailableError{
		Provider: c.Model(),
		Err:      fmt.Errorf("all providers failed: %s", strings.Join(attempts, "; ")),
	}
}

// Model returns the primary provider's model name. Fallback providers share its
// dimension, so vectors remain comparable and cache keys stay stable.
func (c *Chain) Model() string { return c.providers[0].Model() }

// Dimensions returns the chain's shared embedding dimension.
func (c *Chain) Dimensions() int { return c.providers[0].Dimensions() }

// Close closes every provider, returning the first error.
func (c *Chain) Close() error {
	var first error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
