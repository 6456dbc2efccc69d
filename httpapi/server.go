// Package httpapi exposes the conversation manager over HTTP, including an
// SSE surface for streaming chat.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	convo "github.com/convoagent/convo"
)

// Server wires the conversation manager into an http.Handler.
type Server struct {
	manager *convo.Manager
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer creates an HTTP server around the manager.
func NewServer(manager *convo.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		manager: manager,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /conversations", s.handleCreate)
	s.mux.HandleFunc("GET /conversations", s.handleList)
	s.mux.HandleFunc("GET /conversations/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /conversations/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /conversations/{id}/chat", s.handleChat)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type createRequest struct {
	Title string `json:"title"`
}

type chatRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	conv, err := s.manager.Create(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.manager.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, convo.ErrConversationNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.manager.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, convo.ErrConversationNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	if req.Stream {
		s.streamChat(w, r, id, req.Message)
		return
	}

	result, err := s.manager.Chat(r.Context(), id, req.Message)
	if errors.Is(err, convo.ErrConversationNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, id, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	events, err := s.manager.ChatStream(r.Context(), id, message)
	if errors.Is(err, convo.ErrConversationNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("event marshal failed", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
