package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/indexer"
	"github.com/hyperjump/miru/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type indexRequest struct {
	Rebuild bool `json:"rebuild,omitempty"`
}

// handleIndex runs an append-mode indexing pass. Rebuild needs exclusive
// access to the collection and is only reachable from the CLI, so requests
// asking for it are rejected here.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Rebuild {
		s.respondError(w, http.StatusConflict, "rebuild is not available while serving; use the CLI")
		return
	}
	report, err := s.indexer.Run(r.Context(), indexer.RunOptions{})
	if err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := &models.HealthStatus{
		Status:         "healthy",
		StoreConnected: s.store.Healthy(ctx),
		EmbedderReady:  s.embedder.Healthy(ctx),
	}
	if !status.StoreConnected || !status.EmbedderReady {
		status.Status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]any{
		"collection": s.store.Info(ctx),
	}
	if n, err := s.catalog.Count(ctx); err == nil {
		resp["cataloged_images"] = n
	}
	if run, err := s.catalog.LastRun(ctx); err == nil && run != nil {
		resp["last_run"] = run
	}
	resp["config"] = map[string]any{
		"collection":           s.config.Qdrant.Collection,
		"embedding_dimensions": s.config.Qdrant.Dimensions,
		"batch_size":           s.config.Indexing.BatchSize,
		"image_dir":            s.config.Images.Dir,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		s.respondError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(s.config.Images.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		s.respondError(w, http.StatusNotFound, "image not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
