// Package embedding provides cross-modal (text and image) embeddings via a
// CLIP inference service, with query embedding caching.
package embedding

import "context"

// Embedder produces vector embeddings for text and images in a shared space.
// All returned vectors are unit-L2-normalized and have length Dimensions().
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedImageBatch(ctx context.Context, paths []string) ([][]float32, error)
	Dimensions() int
	Healthy(ctx context.Context) bool
	Close() error
}
