package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/models"
)

// QdrantConfig holds connection and collection settings for a Qdrant store.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// QdrantStore implements Store against a Qdrant server using cosine distance.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions int
	logger     *zap.Logger
}

// QdrantOption configures a QdrantStore.
type QdrantOption func(*QdrantStore)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) QdrantOption {
	return func(s *QdrantStore) { s.logger = l }
}

// NewQdrantStore connects to Qdrant. The collection is not created here;
// call Ensure (or Recreate) before indexing.
func NewQdrantStore(cfg QdrantConfig, opts ...QdrantOption) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ensure implements Store.
func (s *QdrantStore) Ensure(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("get collection info: %w", err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && int(size) != s.dimensions {
			return fmt.Errorf("collection %q has %d dimensions, configured %d: %w",
				s.collection, size, s.dimensions, models.ErrDimensionMismatch)
		}
		s.logger.Debug("collection already exists", zap.String("collection", s.collection))
		return nil
	}
	if err := s.createCollection(ctx); err != nil {
		return err
	}
	s.logger.Info("created collection", zap.String("collection", s.collection), zap.Int("dimensions", s.dimensions))
	return nil
}

// Recreate implements Store.
func (s *QdrantStore) Recreate(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}
	if err := s.createCollection(ctx); err != nil {
		return err
	}
	s.logger.Info("recreated collection", zap.String("collection", s.collection))
	return nil
}

func (s *QdrantStore) createCollection(ctx context.Context) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Upsert implements Store. Records are dimension-checked before the wire call
// so a malformed batch is rejected whole, never silently truncated or padded.
func (s *QdrantStore) Upsert(ctx context.Context, records []*models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		if len(rec.Vector) != s.dimensions {
			return fmt.Errorf("record %d has %d dimensions, collection has %d: %w",
				rec.ID, len(rec.Vector), s.dimensions, models.ErrDimensionMismatch)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(rec.Payload),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	s.logger.Debug("upserted points", zap.Int("count", len(points)))
	return nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]*models.ScoredRecord, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, collection has %d: %w",
			len(vector), s.dimensions, models.ErrDimensionMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}
	results := make([]*models.ScoredRecord, 0, len(points))
	for _, point := range points {
		results = append(results, &models.ScoredRecord{
			ID:      point.GetId().GetNum(),
			Score:   point.GetScore(),
			Payload: payloadToMap(point.GetPayload()),
		})
	}
	return results, nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return count, nil
}

// Info implements Store. Any failure is reported as absent.
func (s *QdrantStore) Info(ctx context.Context) *CollectionInfo {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil || !exists {
		return nil
	}
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil
	}
	return &CollectionInfo{
		Name:       s.collection,
		Dimensions: int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
		Points:     info.GetPointsCount(),
	}
}

// Healthy implements Store.
func (s *QdrantStore) Healthy(ctx context.Context) bool {
	_, err := s.client.HealthCheck(ctx)
	return err == nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// payloadToMap converts Qdrant payload values to plain Go values.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = extractValue(v)
	}
	return out
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

var _ Store = (*QdrantStore)(nil)
