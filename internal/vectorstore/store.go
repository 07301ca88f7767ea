// Package vectorstore provides the vector collection contract and its Qdrant
// and in-memory implementations.
package vectorstore

import (
	"context"

	"github.com/hyperjump/miru/internal/models"
)

// Store owns one collection's lifecycle and persisted records. Implementations
// must order Search hits by descending similarity and treat an empty
// collection as an empty result, never an error.
type Store interface {
	// Ensure creates the collection if absent. It is idempotent: an existing
	// collection with matching dimensionality is a no-op, while a dimensionality
	// mismatch returns models.ErrDimensionMismatch.
	Ensure(ctx context.Context) error

	// Recreate drops the collection if present and creates it fresh.
	// Irreversible; only the indexing path may call it.
	Recreate(ctx context.Context) error

	// Upsert inserts or replaces records by ID. The batch is validated against
	// the collection dimensionality before any write; a failed write leaves no
	// partial state the caller must reconcile (retry is a wholesale re-upsert).
	Upsert(ctx context.Context, records []*models.VectorRecord) error

	// Search returns at most topK hits ordered by descending similarity.
	Search(ctx context.Context, vector []float32, topK int) ([]*models.ScoredRecord, error)

	// Count returns the exact number of records in the collection.
	Count(ctx context.Context) (uint64, error)

	// Info is a non-throwing probe: nil means the collection is absent or the
	// store could not be reached.
	Info(ctx context.Context) *CollectionInfo

	// Healthy is a non-throwing connectivity probe for readiness checks.
	Healthy(ctx context.Context) bool

	Close() error
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Points     uint64 `json:"points"`
}
