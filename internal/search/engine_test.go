package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/explain"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/vectorstore"
)

func seededStore(t *testing.T, embedder embedding.Embedder, filenames ...string) *vectorstore.MemoryStore {
	t.Helper()
	store, err := vectorstore.NewMemoryStore("test", embedder.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Ensure(ctx); err != nil {
		t.Fatal(err)
	}
	records := make([]*models.VectorRecord, len(filenames))
	for i, name := range filenames {
		vec, err := embedder.EmbedImage(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		records[i] = &models.VectorRecord{
			ID:      uint64(i),
			Vector:  vec,
			Payload: map[string]any{models.PayloadKeyFilename: name},
		}
	}
	if err := store.Upsert(ctx, records); err != nil {
		t.Fatal(err)
	}
	return store
}

func identityResolver(filename string) string { return "/data/images/" + filename }

func TestSearch_RankedAndEnriched(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	store := seededStore(t, embedder, "cat.jpg", "dog.jpg", "bird.jpg")
	engine := NewEngine(store, embedder, explain.NewMockExplainer(), identityResolver, "/images")

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "a pet", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	if resp.ProcessingTime < 0 {
		t.Error("processing time must be non-negative")
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i-1].Score < resp.Results[i].Score {
			t.Error("results must be ordered by descending score")
		}
	}
	for _, r := range resp.Results {
		if r.Explanation == nil {
			t.Errorf("%s missing explanation", r.Filename)
		}
		if r.ImageURL != "/images/"+r.Filename {
			t.Errorf("image URL = %q", r.ImageURL)
		}
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	embedder := embedding.NewMockEmbedder(8)
	store := seededStore(t, embedder)
	engine := NewEngine(store, embedder, nil, identityResolver, "/images")

	_, err := engine.Search(context.Background(), &models.SearchQuery{Query: ""})
	if !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	embedder := embedding.NewMockEmbedder(8)
	store := seededStore(t, embedder)
	engine := NewEngine(store, embedder, explain.NewMockExplainer(), identityResolver, "/images")

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "anything"})
	if err != nil {
		t.Fatalf("empty collection must not error: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("got %d results", len(resp.Results))
	}
	if resp.ProcessingTime < 0 {
		t.Error("processing time must be non-negative")
	}
}

func TestSearch_PartialExplanationFailure(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	store := seededStore(t, embedder, "a.jpg", "b.jpg", "c.jpg")
	explainer := explain.NewMockExplainer()
	explainer.FailFor["b.jpg"] = true
	engine := NewEngine(store, embedder, explainer, identityResolver, "/images")

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "query", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("failed explanation must not drop a hit: got %d results", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Filename == "b.jpg" {
			if r.Explanation != nil {
				t.Error("b.jpg should have no explanation")
			}
		} else if r.Explanation == nil {
			t.Errorf("%s should retain its explanation", r.Filename)
		}
	}
}

// slowExplainer returns out of order to prove output order is search order.
type slowExplainer struct {
	mu    sync.Mutex
	delay map[string]time.Duration
}

func (s *slowExplainer) Explain(ctx context.Context, imagePath, query string) (string, error) {
	s.mu.Lock()
	d := s.delay[imagePath]
	s.mu.Unlock()
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "explained " + imagePath, nil
}

func (s *slowExplainer) Close() error { return nil }

func TestSearch_OrderIndependentOfCompletion(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	store := seededStore(t, embedder, "a.jpg", "b.jpg", "c.jpg")

	// rank order first; the top hit gets the slowest explanation
	probe := NewEngine(store, embedder, nil, identityResolver, "/images")
	ranked, err := probe.Search(context.Background(), &models.SearchQuery{Query: "query", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	delays := map[string]time.Duration{}
	for i, r := range ranked.Results {
		delays[identityResolver(r.Filename)] = time.Duration(len(ranked.Results)-i) * 50 * time.Millisecond
	}

	engine := NewEngine(store, embedder, &slowExplainer{delay: delays}, identityResolver, "/images",
		WithConcurrency(3))
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "query", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range resp.Results {
		if r.Filename != ranked.Results[i].Filename {
			t.Fatalf("order changed under concurrent enrichment: %v vs %v",
				r.Filename, ranked.Results[i].Filename)
		}
		if r.Explanation == nil {
			t.Errorf("%s missing explanation", r.Filename)
		}
	}
}

type failingEmbedder struct {
	*embedding.MockEmbedder
}

func (f *failingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("model unavailable")
}

func TestSearch_EmbeddingFailureIsFatal(t *testing.T) {
	embedder := &failingEmbedder{MockEmbedder: embedding.NewMockEmbedder(8)}
	store := seededStore(t, embedder.MockEmbedder, "a.jpg")
	engine := NewEngine(store, embedder, explain.NewMockExplainer(), identityResolver, "/images")

	if _, err := engine.Search(context.Background(), &models.SearchQuery{Query: "query"}); err == nil {
		t.Error("embedding failure must fail the request")
	}
}

func TestSearch_TopKBound(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	store := seededStore(t, embedder, "a.jpg", "b.jpg", "c.jpg")
	engine := NewEngine(store, embedder, nil, identityResolver, "/images")

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "query", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("top_k=5 against 3 records: got %d hits", len(resp.Results))
	}
}
