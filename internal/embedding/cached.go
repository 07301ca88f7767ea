package embedding

import "context"

// CachedEmbedder wraps an Embedder with a text-embedding cache. Only
// EmbedText is cached: it is the per-request hot spot, and image embeddings
// are computed once per file by the indexing pipeline.
type CachedEmbedder struct {
	Embedder
	cache Cache
}

// NewCachedEmbedder wraps inner with cache. A nil cache returns inner unchanged.
func NewCachedEmbedder(inner Embedder, cache Cache) Embedder {
	if cache == nil {
		return inner
	}
	return &CachedEmbedder{Embedder: inner, cache: cache}
}

// EmbedText returns the cached embedding for text when present, otherwise
// delegates to the inner embedder and stores the result.
func (e *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, text, vec)
	return vec, nil
}
