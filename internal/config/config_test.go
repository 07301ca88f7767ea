package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9090
images:
  dir: ./images
qdrant:
  host: qdrant.internal
  dimensions: 512
explain:
  api_key: test-key
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Qdrant.Host != "qdrant.internal" {
		t.Errorf("qdrant host = %q", cfg.Qdrant.Host)
	}
	if cfg.Qdrant.Dimensions != 512 {
		t.Errorf("dimensions = %d", cfg.Qdrant.Dimensions)
	}
	if cfg.Images.Dir != filepath.Join(dir, "images") {
		t.Errorf("images dir not expanded: %q", cfg.Images.Dir)
	}
	// defaults fill in what the file omits
	if cfg.Qdrant.Collection != "image_embeddings" {
		t.Errorf("collection default = %q", cfg.Qdrant.Collection)
	}
	if cfg.Indexing.BatchSize != 16 {
		t.Errorf("batch size default = %d", cfg.Indexing.BatchSize)
	}
	if cfg.Explain.Model != "gpt-4o-mini" {
		t.Errorf("explain model default = %q", cfg.Explain.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 8080 {
		t.Errorf("port default = %d", cfg.Server.Port)
	}
	if cfg.Qdrant.Dimensions != 768 {
		t.Errorf("dimensions default = %d", cfg.Qdrant.Dimensions)
	}
	if cfg.Search.DefaultTopK != 5 || cfg.Search.MaxTopK != 10 {
		t.Errorf("top-k defaults = %d/%d", cfg.Search.DefaultTopK, cfg.Search.MaxTopK)
	}
	if cfg.Explain.ThumbnailMaxEdge != 512 || cfg.Explain.JPEGQuality != 85 {
		t.Error("explain image defaults not applied")
	}
	if cfg.Images.URLPrefix != "/images" {
		t.Errorf("url prefix default = %q", cfg.Images.URLPrefix)
	}
}
