package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Images.Dir == "" {
		cfg.Images.Dir = "/usr/local/var/miru/data/images"
	}
	if cfg.Images.URLPrefix == "" {
		cfg.Images.URLPrefix = "/images"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "image_embeddings"
	}
	if cfg.Qdrant.Dimensions == 0 {
		cfg.Qdrant.Dimensions = 768
	}
	if cfg.Qdrant.TimeoutSeconds == 0 {
		cfg.Qdrant.TimeoutSeconds = 60
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8100"
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 60
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Explain.Model == "" {
		cfg.Explain.Model = "gpt-4o-mini"
	}
	if cfg.Explain.MaxTokens == 0 {
		cfg.Explain.MaxTokens = 150
	}
	if cfg.Explain.Temperature == 0 {
		cfg.Explain.Temperature = 0.2
	}
	if cfg.Explain.TimeoutSeconds == 0 {
		cfg.Explain.TimeoutSeconds = 30
	}
	if cfg.Explain.Concurrency == 0 {
		cfg.Explain.Concurrency = 4
	}
	if cfg.Explain.ThumbnailMaxEdge == 0 {
		cfg.Explain.ThumbnailMaxEdge = 512
	}
	if cfg.Explain.JPEGQuality == 0 {
		cfg.Explain.JPEGQuality = 85
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 16
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 10
	}
	if cfg.Catalog.DatabasePath == "" {
		cfg.Catalog.DatabasePath = "/usr/local/var/miru/data/db/catalog.db"
	}
}
