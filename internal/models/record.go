// Package models defines core data structures for vector records, queries, and search results.
package models

// PayloadKeyFilename is the payload field every indexed record carries.
const PayloadKeyFilename = "filename"

// VectorRecord is the unit of storage in a collection: a stable point ID,
// a fixed-length embedding, and opaque metadata.
type VectorRecord struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Filename returns the filename payload field, or "" when absent.
func (r *VectorRecord) Filename() string {
	if r.Payload == nil {
		return ""
	}
	if s, ok := r.Payload[PayloadKeyFilename].(string); ok {
		return s
	}
	return ""
}

// ScoredRecord is a single similarity-search hit, ordered by descending score.
type ScoredRecord struct {
	ID      uint64         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Filename returns the filename payload field, or "" when absent.
func (r *ScoredRecord) Filename() string {
	if r.Payload == nil {
		return ""
	}
	if s, ok := r.Payload[PayloadKeyFilename].(string); ok {
		return s
	}
	return ""
}
