package models

const (
	// DefaultTopK is the number of hits returned when the request does not ask for one.
	DefaultTopK = 5
	// MaxTopK caps how many hits a single request may ask for.
	MaxTopK = 10
)

// SearchQuery represents one image search request.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the query has valid fields and sets defaults.
// Returns ErrEmptyQuery for a blank query; TopK is normalized into [1, MaxTopK].
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}
