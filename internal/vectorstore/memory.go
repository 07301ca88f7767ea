package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/pkg/utils"
)

// MemoryStore is an in-memory Store using brute-force cosine search.
// Suitable for tests and small development datasets without a Qdrant server.
type MemoryStore struct {
	name       string
	dimensions int
	created    bool
	records    map[uint64]*models.VectorRecord
	mu         sync.RWMutex
}

// NewMemoryStore creates an in-memory store for a collection of the given dimensionality.
func NewMemoryStore(name string, dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		name:       name,
		dimensions: dimensions,
		records:    make(map[uint64]*models.VectorRecord),
	}, nil
}

// Ensure implements Store.
func (m *MemoryStore) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	return nil
}

// Recreate implements Store.
func (m *MemoryStore) Recreate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	m.records = make(map[uint64]*models.VectorRecord)
	return nil
}

// Upsert implements Store. The whole batch is dimension-checked before any
// record is written, so a bad batch leaves the collection unchanged.
func (m *MemoryStore) Upsert(ctx context.Context, records []*models.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return fmt.Errorf("collection %q: %w", m.name, models.ErrCollectionMissing)
	}
	for _, rec := range records {
		if len(rec.Vector) != m.dimensions {
			return fmt.Errorf("record %d has %d dimensions, collection has %d: %w",
				rec.ID, len(rec.Vector), m.dimensions, models.ErrDimensionMismatch)
		}
	}
	for _, rec := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, rec.Vector)
		payload := make(map[string]any, len(rec.Payload))
		for k, v := range rec.Payload {
			payload[k] = v
		}
		m.records[rec.ID] = &models.VectorRecord{ID: rec.ID, Vector: vec, Payload: payload}
	}
	return nil
}

// Search implements Store.
func (m *MemoryStore) Search(ctx context.Context, vector []float32, topK int) ([]*models.ScoredRecord, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, collection has %d: %w",
			len(vector), m.dimensions, models.ErrDimensionMismatch)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 || len(m.records) == 0 {
		return []*models.ScoredRecord{}, nil
	}
	scored := make([]*models.ScoredRecord, 0, len(m.records))
	for _, rec := range m.records {
		scored = append(scored, &models.ScoredRecord{
			ID:      rec.ID,
			Score:   float32(utils.Dot(vector, rec.Vector)),
			Payload: rec.Payload,
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// Count implements Store.
func (m *MemoryStore) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.records)), nil
}

// Info implements Store.
func (m *MemoryStore) Info(ctx context.Context) *CollectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return nil
	}
	return &CollectionInfo{
		Name:       m.name,
		Dimensions: m.dimensions,
		Points:     uint64(len(m.records)),
	}
}

// Healthy implements Store.
func (m *MemoryStore) Healthy(ctx context.Context) bool {
	return true
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
