package api

import (
	"encoding/json"
	"net/http"

	"github.com/draftboard/draftboard/internal/apierr"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Authenticated callers get the access-scoped listing; the full listing
	// is reserved for the trusted internal path with explicit project scope.
	if user := userID(r); user != "" && q.Get("scope") == "mine" {
		page, err := s.store.ListForUser(r.Context(), user, storage.UserListOptions{
			Project: q.Get("project"),
			Limit:   queryInt(r, "limit", 0),
			Offset:  queryInt(r, "offset", 0),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, page)
		return
	}

	opts := storage.ListOptions{
		Project:       q.Get("project"),
		Limit:         queryInt(r, "limit", 0),
		Offset:        queryInt(r, "offset", 0),
		SortBy:        storage.SortBy(q.Get("sortBy")),
		SortOrder:     storage.SortOrder(q.Get("sortOrder")),
		Search:        q.Get("search"),
		CreatedAfter:  queryTime(r, "createdAfter"),
		CreatedBefore: queryTime(r, "createdBefore"),
		UpdatedAfter:  queryTime(r, "updatedAfter"),
		UpdatedBefore: queryTime(r, "updatedBefore"),
	}
	for _, t := range q["type"] {
		opts.Types = append(opts.Types, spec.DiagramType(t))
	}

	page, err := s.store.ListPaginated(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

type createRequest struct {
	Name     string          `json:"name"`
	Project  string          `json:"project"`
	Spec     json.RawMessage `json:"spec"`
	IsPublic bool            `json:"isPublic"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCode(w, apierr.CodeInvalidJSON, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeCode(w, apierr.CodeMissingParameter, "name is required")
		return
	}
	sp, err := parseSpec(req.Spec)
	if err != nil {
		s.writeError(w, err)
		return
	}

	d, err := s.store.Create(r.Context(), req.Name, req.Project, sp, storage.CreateOptions{
		OwnerID:  userID(r),
		IsPublic: req.IsPublic,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if d == nil {
		s.writeCode(w, apierr.CodeNotFound, "diagram not found")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

type updateRequest struct {
	Spec        json.RawMessage `json:"spec"`
	Message     string          `json:"message"`
	BaseVersion *int64          `json:"baseVersion"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCode(w, apierr.CodeInvalidJSON, "invalid request body")
		return
	}
	sp, err := parseSpec(req.Spec)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.store.Update(r.Context(), r.PathValue("id"), sp, req.Message, req.BaseVersion)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res == nil {
		s.writeCode(w, apierr.CodeNotFound, "diagram not found")
		return
	}
	if res.Conflict {
		// The conflict carries the winning version so the client can
		// re-read and retry; it is part of the contract, not debug detail.
		s.writeJSON(w, http.StatusConflict, res)
		return
	}
	s.writeJSON(w, http.StatusOK, res.Diagram)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeCode(w, apierr.CodeNotFound, "diagram not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forkRequest struct {
	Name    string `json:"name"`
	Project string `json:"project"`
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCode(w, apierr.CodeInvalidJSON, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeCode(w, apierr.CodeMissingParameter, "name is required")
		return
	}
	d, err := s.store.Fork(r.Context(), r.PathValue("id"), req.Name, req.Project)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if d == nil {
		s.writeCode(w, apierr.CodeNotFound, "diagram not found")
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}
