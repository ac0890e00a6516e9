package api

import (
	"encoding/json"
	"net/http"

	"github.com/draftboard/draftboard/internal/apierr"
)

type thumbnailRequest struct {
	DataURL string `json:"dataUrl"`
}

type thumbnailResponse struct {
	DataURL string `json:"dataUrl"`
}

func (s *Server) handleThumbnailPut(w http.ResponseWriter, r *http.Request) {
	if s.thumbs == nil {
		s.writeCode(w, apierr.CodeServiceUnavailable, "thumbnails disabled")
		return
	}
	var req thumbnailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCode(w, apierr.CodeInvalidJSON, "invalid request body")
		return
	}
	if req.DataURL == "" {
		s.writeCode(w, apierr.CodeMissingParameter, "dataUrl is required")
		return
	}

	id := r.PathValue("id")
	d, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if d == nil {
		s.writeCode(w, apierr.CodeNotFound, "diagram not found")
		return
	}

	if err := s.thumbs.Save(id, req.DataURL); err != nil {
		s.writeCode(w, apierr.CodeInvalidInput, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleThumbnailGet(w http.ResponseWriter, r *http.Request) {
	if s.thumbs == nil {
		s.writeCode(w, apierr.CodeServiceUnavailable, "thumbnails disabled")
		return
	}
	dataURL, err := s.thumbs.Load(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if dataURL == "" {
		s.writeCode(w, apierr.CodeNotFound, "no thumbnail")
		return
	}
	s.writeJSON(w, http.StatusOK, thumbnailResponse{DataURL: dataURL})
}
