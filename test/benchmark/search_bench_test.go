// Package benchmark measures query pipeline throughput with in-process
// backends.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/search"
	"github.com/hyperjump/miru/internal/vectorstore"
)

const dimensions = 64

func seedStore(b *testing.B, n int) *vectorstore.MemoryStore {
	b.Helper()
	store, err := vectorstore.NewMemoryStore("bench", dimensions)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Ensure(ctx); err != nil {
		b.Fatal(err)
	}
	embedder := embedding.NewMockEmbedder(dimensions)
	records := make([]*models.VectorRecord, 0, n)
	for i := 0; i < n; i++ {
		filename := fmt.Sprintf("img-%04d.jpg", i)
		vec, err := embedder.EmbedImage(ctx, filename)
		if err != nil {
			b.Fatal(err)
		}
		records = append(records, &models.VectorRecord{
			ID:      uint64(i),
			Vector:  vec,
			Payload: map[string]any{models.PayloadKeyFilename: filename},
		})
	}
	if err := store.Upsert(ctx, records); err != nil {
		b.Fatal(err)
	}
	return store
}

func BenchmarkSearch(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("points_%d", size), func(b *testing.B) {
			store := seedStore(b, size)
			embedder := embedding.NewMockEmbedder(dimensions)
			engine := search.NewEngine(store, embedder, nil,
				func(filename string) string { return filename }, "/images")
			query := &models.SearchQuery{Query: "city skyline at night", TopK: 5}
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Search(ctx, query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEmbedTextCached(b *testing.B) {
	embedder := embedding.NewCachedEmbedder(
		embedding.NewMockEmbedder(dimensions),
		embedding.NewMemoryCache(128),
	)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := embedder.EmbedText(ctx, "a red bicycle leaning on a wall"); err != nil {
			b.Fatal(err)
		}
	}
}
