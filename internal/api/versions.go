package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/draftboard/draftboard/internal/apierr"
	"github.com/draftboard/draftboard/internal/diff"
)

type versionsResponse struct {
	Versions interface{} `json:"versions"`
	Total    int         `json:"total"`
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	diagramID := r.PathValue("id")

	if r.URL.Query().Get("full") == "true" {
		versions, total, err := s.store.GetVersionsPaginated(r.Context(), diagramID,
			queryInt(r, "limit", 0), queryInt(r, "offset", 0))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, versionsResponse{Versions: versions, Total: total})
		return
	}

	meta, err := s.store.GetVersionsMetadata(r.Context(), diagramID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versionsResponse{Versions: meta, Total: len(meta)})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(r.PathValue("version"), 10, 64)
	if err != nil || n < 1 {
		s.writeCode(w, apierr.CodeInvalidInput, "version must be a positive integer")
		return
	}
	v, err := s.store.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if v == nil {
		s.writeCode(w, apierr.CodeNotFound, "version not found")
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

type restoreRequest struct {
	Version int64 `json:"version"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCode(w, apierr.CodeInvalidJSON, "invalid request body")
		return
	}
	if req.Version < 1 {
		s.writeCode(w, apierr.CodeInvalidInput, "version must be a positive integer")
		return
	}
	d, err := s.store.RestoreVersion(r.Context(), r.PathValue("id"), req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if d == nil {
		s.writeCode(w, apierr.CodeNotFound, "version not found")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// timelineEntry is one history step annotated with its semantic diff
// against the previous version.
type timelineEntry struct {
	Version   int64    `json:"version"`
	Message   string   `json:"message,omitempty"`
	CreatedAt string   `json:"createdAt"`
	Summary   string   `json:"summary"`
	Changes   []string `json:"changes,omitempty"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.GetVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(versions) == 0 {
		s.writeCode(w, apierr.CodeNotFound, "diagram not found")
		return
	}

	// GetVersions is newest-first; each entry diffs against its parent.
	entries := make([]timelineEntry, 0, len(versions))
	for i, v := range versions {
		entry := timelineEntry{
			Version:   v.Version,
			Message:   v.Message,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05.000Z"),
		}
		if i+1 < len(versions) {
			d := diff.Compute(versions[i+1].Spec, v.Spec)
			entry.Summary = diff.Summary(d)
			entry.Changes = diff.Describe(d)
		} else {
			entry.Summary = "Initial version"
		}
		entries = append(entries, entry)
	}
	s.writeJSON(w, http.StatusOK, entries)
}
