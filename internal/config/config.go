// Package config provides configuration loading and structs for the Miru server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Images    ImagesConfig    `yaml:"images"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Explain   ExplainConfig   `yaml:"explain"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Search    SearchConfig    `yaml:"search"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ImagesConfig holds the image collection location and the URL prefix under
// which files are served.
type ImagesConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
}

// QdrantConfig holds vector store connection and collection settings.
// Dimensions must match the embedding model's output size across indexing
// and query time; a mismatch is a configuration error.
type QdrantConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	APIKey         string `yaml:"api_key"`
	UseTLS         bool   `yaml:"use_tls"`
	Collection     string `yaml:"collection"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EmbeddingConfig holds settings for the CLIP inference service client.
// RedisAddr selects a Redis-backed query embedding cache; when empty an
// in-process LRU cache of CacheSize entries is used.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
	RedisAddr      string `yaml:"redis_addr"`
}

// ExplainConfig holds settings for the explanation provider.
type ExplainConfig struct {
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"`
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	Concurrency      int     `yaml:"concurrency"`
	ThumbnailMaxEdge int     `yaml:"thumbnail_max_edge"`
	JPEGQuality      int     `yaml:"jpeg_quality"`
}

// IndexingConfig holds indexing pipeline settings.
type IndexingConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// SearchConfig holds query pipeline settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// CatalogConfig holds the path of the indexing catalog database.
type CatalogConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig holds image directory watch settings.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands relative paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Images.Dir = expandPath(cfg.Images.Dir, configDir)
	cfg.Catalog.DatabasePath = expandPath(cfg.Catalog.DatabasePath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
