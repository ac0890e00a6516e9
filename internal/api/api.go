// Package api exposes the diagram store over HTTP. It is the in-process
// consumer of the protected storage wrapper; errors surface as the
// {error:{code,message,details?}} envelope.
//
// Authentication is an external collaborator: a fronting proxy or middleware
// establishes identity and passes it via the X-User-Id header. The handlers
// here enforce input validation and quota semantics, not access control.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/draftboard/draftboard/internal/apierr"
	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
	"github.com/draftboard/draftboard/internal/thumbs"
)

// Server wires the REST handlers over a storage backend and thumbnail store.
type Server struct {
	store   storage.Storage
	thumbs  *thumbs.Store
	devMode bool
}

// NewServer builds the REST surface. thumbStore may be nil to disable the
// thumbnail endpoints.
func NewServer(store storage.Storage, thumbStore *thumbs.Store, devMode bool) *Server {
	return &Server{store: store, thumbs: thumbStore, devMode: devMode}
}

// Register attaches every route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/diagrams", s.handleList)
	mux.HandleFunc("POST /api/diagrams", s.handleCreate)
	mux.HandleFunc("GET /api/diagrams/{id}", s.handleGet)
	mux.HandleFunc("PUT /api/diagrams/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/diagrams/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/diagrams/{id}/fork", s.handleFork)
	mux.HandleFunc("GET /api/diagrams/{id}/versions", s.handleVersions)
	mux.HandleFunc("GET /api/diagrams/{id}/versions/{version}", s.handleVersion)
	mux.HandleFunc("POST /api/diagrams/{id}/restore", s.handleRestore)
	mux.HandleFunc("GET /api/diagrams/{id}/timeline", s.handleTimeline)
	mux.HandleFunc("PUT /api/diagrams/{id}/thumbnail", s.handleThumbnailPut)
	mux.HandleFunc("GET /api/diagrams/{id}/thumbnail", s.handleThumbnailGet)
	mux.HandleFunc("GET /api/stats", s.handleStats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Logf("api: response encode failed: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	apierr.Write(w, err, s.devMode)
}

// writeCode emits a plain envelope for boundary failures that never become
// Go error values (bad route params, missing body fields).
func (s *Server) writeCode(w http.ResponseWriter, code, message string) {
	s.writeJSON(w, apierr.Status(code), apierr.Envelope{Error: apierr.Body{
		Code:    code,
		Message: message,
	}})
}

// userID returns the identity established by the fronting auth layer.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// parseSpec strictly validates an inbound spec document.
func parseSpec(raw json.RawMessage) (*spec.DiagramSpec, error) {
	if len(raw) == 0 {
		return nil, &spec.ValidationError{Issues: []spec.Issue{{Path: "$.spec", Message: "spec is required"}}}
	}
	return spec.Parse(raw)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryTime(r *http.Request, key string) *time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
