// Package search provides the query pipeline: embed the query, search the
// vector store, and enrich hits with explanations.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/explain"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/vectorstore"
)

const (
	defaultConcurrency    = 4
	defaultExplainTimeout = 30 * time.Second
)

// PathResolver maps a stored filename to a readable file path.
type PathResolver func(filename string) string

// Engine answers one search request at a time; instances are safe for
// concurrent use and never mutate the store.
type Engine struct {
	store          vectorstore.Store
	embedder       embedding.Embedder
	explainer      explain.Explainer
	resolvePath    PathResolver
	urlPrefix      string
	concurrency    int
	explainTimeout time.Duration
	logger         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the explanation fan-out per request.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithExplainTimeout bounds each per-hit explanation call.
func WithExplainTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.explainTimeout = d
		}
	}
}

// WithLogger sets a logger for per-request debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine. explainer may be nil, in which case all
// hits are returned without explanations.
func NewEngine(
	store vectorstore.Store,
	embedder embedding.Embedder,
	explainer explain.Explainer,
	resolvePath PathResolver,
	urlPrefix string,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:          store,
		embedder:       embedder,
		explainer:      explainer,
		resolvePath:    resolvePath,
		urlPrefix:      urlPrefix,
		concurrency:    defaultConcurrency,
		explainTimeout: defaultExplainTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search answers one query. The response's hit order always matches the
// store's search order; a failed explanation leaves its hit in place with no
// explanation. Only an embedding or store failure fails the whole request.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedText(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	hits, err := e.store.Search(ctx, vector, query.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := e.enrich(ctx, hits, query.Query)

	response := &models.SearchResponse{
		Results:        results,
		Query:          query.Query,
		ProcessingTime: time.Since(startTime).Seconds(),
	}
	e.logger.Debug("search completed",
		zap.String("query", query.Query),
		zap.Int("hits", len(results)),
		zap.Float64("processing_time", response.ProcessingTime),
	)
	return response, nil
}

// enrich builds one SearchResult per hit, dispatching explanation calls
// concurrently and reassembling them by hit position so output order matches
// search order, never completion order.
func (e *Engine) enrich(ctx context.Context, hits []*models.ScoredRecord, query string) []*models.SearchResult {
	results := make([]*models.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = &models.SearchResult{
			ImageID:  fmt.Sprintf("%d", hit.ID),
			Filename: hit.Filename(),
			Score:    hit.Score,
			ImageURL: e.urlPrefix + "/" + hit.Filename(),
		}
	}
	if e.explainer == nil || len(hits) == 0 {
		return results
	}

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			hitCtx, cancel := context.WithTimeout(ctx, e.explainTimeout)
			defer cancel()
			text, err := e.explainer.Explain(hitCtx, e.resolvePath(results[i].Filename), query)
			if err != nil {
				e.logger.Warn("explanation failed",
					zap.String("file", results[i].Filename),
					zap.Error(err),
				)
				return
			}
			results[i].Explanation = &text
		}(i)
	}
	wg.Wait()
	return results
}
