package models

// SearchResult is a single ranked hit in a search response. Explanation is
// nil when the explanation provider failed or was disabled for this hit.
type SearchResult struct {
	ImageID     string  `json:"image_id"`
	Filename    string  `json:"filename"`
	Score       float32 `json:"score"`
	Explanation *string `json:"explanation,omitempty"`
	ImageURL    string  `json:"image_url"`
}

// SearchResponse is the response for a search request. Results are ordered by
// descending similarity score, exactly as returned by the vector store.
type SearchResponse struct {
	Results        []*SearchResult `json:"results"`
	Query          string          `json:"query"`
	ProcessingTime float64         `json:"processing_time"`
}

// HealthStatus reports readiness of the serving path's dependencies.
type HealthStatus struct {
	Status          string `json:"status"`
	StoreConnected  bool   `json:"store_connected"`
	EmbedderReady   bool   `json:"embedder_ready"`
}
