package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CanopyHQ/xylem/internal/causal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps store errors onto HTTP status codes: caller mistakes are
// 400, everything else is a server error.
func writeError(w http.ResponseWriter, err error) {
	var vErr *causal.ValidationError
	var argErr *causal.InvalidArgumentError
	status := http.StatusInternalServerError
	if errors.As(err, &vErr) || errors.As(err, &argErr) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var rel causal.CausalRelationship
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	id, err := s.store.Store(r.Context(), &rel)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     id,
		"status": "recorded",
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent parameter required"})
		return
	}

	filter := &causal.Filter{
		Type:     causal.RelationType(r.URL.Query().Get("type")),
		Category: causal.Category(r.URL.Query().Get("category")),
	}
	if m := r.URL.Query().Get("min_strength"); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			filter.MinStrength = &v
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if ts, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = ts
		}
	}

	rels, err := s.store.QueryByAgent(r.Context(), agentID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if len(rels) > limit {
		rels = rels[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent":         agentID,
		"count":         len(rels),
		"relationships": rels,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rel, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rel == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "relationship not found"})
		return
	}

	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handleRevise(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Strength   float64 `json:"strength"`
		Confidence float64 `json:"confidence"`
		Source     string  `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	rel, err := s.store.ReviseLearning(r.Context(), id, req.Strength, req.Confidence, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	startID := r.URL.Query().Get("start")
	if startID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start parameter required"})
		return
	}

	direction := causal.DirectionForward
	if d := r.URL.Query().Get("direction"); d != "" {
		direction = causal.Direction(d)
	}

	maxDepth := causal.DefaultMaxDepth
	if d := r.URL.Query().Get("max_depth"); d != "" {
		if n, err := strconv.Atoi(d); err == nil {
			maxDepth = n
		}
	}

	chains, err := s.store.Traverse(r.Context(), startID, direction, maxDepth)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start":  startID,
		"count":  len(chains),
		"chains": chains,
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent parameter required"})
		return
	}

	summary, err := s.store.Analyze(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRelatedNodes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q parameter required"})
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	nodes, err := s.store.FindRelatedNodes(r.Context(), query, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query": query,
		"count": len(nodes),
		"nodes": nodes,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	nodes, _ := s.store.NodeCount(r.Context())
	size, _ := s.store.Size()
	lastActivity, _ := s.store.LastActivity(r.Context())

	last := "never"
	if !lastActivity.IsZero() {
		last = lastActivity.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_relationships": count,
		"total_nodes":         nodes,
		"database_size":       size,
		"last_activity":       last,
	})
}
