package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/queue"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/vector"
)

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps runtime error codes onto HTTP statuses.
func statusFor(err error) int {
	switch troupeErrors.AsCode(err) {
	case troupeErrors.CodeAgentNotFound, troupeErrors.CodeJobNotFound:
		return http.StatusNotFound
	case troupeErrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case troupeErrors.CodeQueueUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
		"queue":   "ok",
	}
	if err := s.broker.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		health["queue"] = err.Error()
	}
	jsonResponse(w, http.StatusOK, health)
}

// --- Async job shim ---

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
}

func (s *Server) handleChatAsync(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Message == "" {
		jsonError(w, http.StatusBadRequest, "message is required")
		return
	}

	jobID := queue.NewJobID()
	job := queue.ChatJob{
		JobID:          jobID,
		Message:        body.Message,
		ConversationID: body.ConversationID,
		AgentID:        body.AgentID,
	}
	if err := s.broker.Enqueue(r.Context(), queue.QueueChat, jobID, job); err != nil {
		s.logger.Error("Chat enqueue failed", "error", err)
		jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": "queued",
	})
}

func (s *Server) handleChatJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok, err := s.broker.Status(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "job not found: "+id)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleEmbedAsync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentID string                 `json:"document_id,omitempty"`
		Content    string                 `json:"content"`
		Metadata   map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Content == "" {
		jsonError(w, http.StatusBadRequest, "content is required")
		return
	}
	if body.DocumentID == "" {
		body.DocumentID = queue.NewJobID()
	}

	jobID := queue.NewJobID()
	job := queue.EmbedJob{
		JobID:      jobID,
		DocumentID: body.DocumentID,
		Content:    body.Content,
		Metadata:   body.Metadata,
	}
	if err := s.broker.Enqueue(r.Context(), queue.QueueEmbed, jobID, job); err != nil {
		s.logger.Error("Embed enqueue failed", "error", err)
		jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{
		"job_id":      jobID,
		"document_id": body.DocumentID,
		"status":      "queued",
	})
}

func (s *Server) handleIndexAsync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentID string `json:"document_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.DocumentID == "" {
		jsonError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	jobID := queue.NewJobID()
	job := queue.IndexJob{JobID: jobID, DocumentID: body.DocumentID}
	if err := s.broker.Enqueue(r.Context(), queue.QueueIndex, jobID, job); err != nil {
		s.logger.Error("Index enqueue failed", "error", err)
		jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{
		"job_id":      jobID,
		"document_id": body.DocumentID,
		"status":      "queued",
	})
}

// --- Synchronous chat ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Message == "" {
		jsonError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.chat.Run(r.Context(), queue.ChatJob{
		JobID:          queue.NewJobID(),
		Message:        body.Message,
		ConversationID: body.ConversationID,
		AgentID:        body.AgentID,
	})
	if err != nil {
		s.logger.Error("Chat failed", "error", err)
		jsonError(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

// --- Vector search ---

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		jsonError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		jsonError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := queryInt(r, "limit", 5)

	results, err := s.search.Search(r.Context(), query, limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []vector.Result{}
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// --- Run history ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.List(queryInt(r, "limit", 50))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*state.Record{}
	}
	jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok, err := s.runs.Get(id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
