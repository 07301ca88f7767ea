package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"path/filepath"

	"github.com/hyperjump/miru/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// unit vector derived from the input hash so that the same text or filename
// always gets the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &MockEmbedder{dimensions: dimensions}
}

func hashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % 10000)
}

func (e *MockEmbedder) embed(key string) []float32 {
	h := hashString(key)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// EmbedImage returns a deterministic embedding based on the file's base name.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	return e.embed(filepath.Base(path)), nil
}

// EmbedImageBatch calls EmbedImage for each path.
func (e *MockEmbedder) EmbedImageBatch(ctx context.Context, paths []string) ([][]float32, error) {
	embeddings := make([][]float32, len(paths))
	for i, path := range paths {
		emb, err := e.EmbedImage(ctx, path)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Healthy always reports ready.
func (e *MockEmbedder) Healthy(ctx context.Context) bool {
	return true
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

var _ Embedder = (*MockEmbedder)(nil)
