package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/catalog"
	"github.com/hyperjump/miru/internal/config"
	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/explain"
	"github.com/hyperjump/miru/internal/indexer"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/search"
	"github.com/hyperjump/miru/internal/vectorstore"
)

func writeTestPNG(t *testing.T, dir, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	imageDir := t.TempDir()
	writeTestPNG(t, imageDir, "sunset.png")
	writeTestPNG(t, imageDir, "harbor.png")

	store, err := vectorstore.NewMemoryStore("test", 8)
	if err != nil {
		t.Fatal(err)
	}
	embedder := embedding.NewMockEmbedder(8)
	cat, err := catalog.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	cfg := &config.Config{}
	cfg.Images.Dir = imageDir
	config.ApplyDefaults(cfg)
	cfg.Qdrant.Dimensions = 8

	resolve := func(filename string) string { return filepath.Join(imageDir, filename) }
	engine := search.NewEngine(store, embedder, explain.NewMockExplainer(), resolve, cfg.Images.URLPrefix)
	idx := indexer.New(store, embedder, cat, imageDir, indexer.WithBatchSize(4))
	return NewServer(engine, idx, store, embedder, cat, cfg, zap.NewNop())
}

func TestHandleIndexThenSearch(t *testing.T) {
	srv := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/index", nil)
	w := httptest.NewRecorder()
	srv.handleIndex(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("index status: got %d, body %s", w.Code, w.Body.String())
	}
	var report indexer.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 2 {
		t.Errorf("indexed: got %d, want 2", report.Indexed)
	}

	body, _ := json.Marshal(models.SearchQuery{Query: "boats at dusk", TopK: 5})
	r = httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w = httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("search status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	for _, result := range resp.Results {
		if result.Explanation == nil {
			t.Errorf("result %s: missing explanation", result.Filename)
		}
	}
}

func TestHandleSearchEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(models.SearchQuery{Query: ""})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSearchBadBody(t *testing.T) {
	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleIndexRejectsRebuild(t *testing.T) {
	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/index", bytes.NewReader([]byte(`{"rebuild":true}`)))
	w := httptest.NewRecorder()
	srv.handleIndex(w, r)
	if w.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var status models.HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "healthy" {
		t.Errorf("status: got %q, want healthy", status.Status)
	}
	if !status.StoreConnected || !status.EmbedderReady {
		t.Errorf("expected both dependencies ready: %+v", status)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.indexer.Run(context.Background(), indexer.RunOptions{}); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["collection"] == nil {
		t.Error("expected collection info")
	}
	if n, ok := out["cataloged_images"].(float64); !ok || n != 2 {
		t.Errorf("cataloged_images: got %v, want 2", out["cataloged_images"])
	}
	if out["last_run"] == nil {
		t.Error("expected last_run after indexing")
	}
}

func TestHandleImage(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Routes()

	r := httptest.NewRequest(http.MethodGet, "/images/sunset.png", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("existing image: got %d, want %d", w.Code, http.StatusOK)
	}

	r = httptest.NewRequest(http.MethodGet, "/images/missing.png", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing image: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleImageRejectsTraversal(t *testing.T) {
	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/images/x", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("filename", "../secret.txt")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	srv.handleImage(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}
