package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/admission"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

func (s *Server) handleSubmitShootout(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var draft shootout.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	id, err := s.core.SubmitShootout(r.Context(), owner, &draft)
	if err != nil {
		var invalid *admission.InvalidShootout
		if errors.As(err, &invalid) {
			writeInvalidShootout(w, invalid.Field, invalid.Reason)
			return
		}
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id.String()})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var filter tonequeue.JobFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := job.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status filter: "+err.Error())
			return
		}
		filter.Status = status
	}

	page := tonequeue.Page{Limit: 50}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		page.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		page.Offset = n
	}

	result, err := s.core.ListJobs(r.Context(), owner, filter, page)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	views := make([]jobView, 0, len(result.Jobs))
	for _, j := range result.Jobs {
		views = append(views, newJobView(j))
	}
	writeJSON(w, http.StatusOK, jobPageView{Jobs: views, Total: result.Total})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	jobID, ok := s.parseJobID(w, r)
	if !ok {
		return
	}
	j, err := s.core.GetJob(r.Context(), owner, jobID)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(j))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	jobID, ok := s.parseJobID(w, r)
	if !ok {
		return
	}
	if err := s.core.CancelJob(r.Context(), owner, jobID); err != nil {
		s.writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStoreCredential(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token must not be empty")
		return
	}
	if err := s.core.StoreCredential(r.Context(), owner, req.RefreshToken); err != nil {
		s.writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	if err := s.core.RevokeCredential(r.Context(), owner); err != nil {
		s.writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed job id")
		return uuid.UUID{}, false
	}
	return id, true
}

// writeCoreError maps the tonequeue error taxonomy (spec §7) to HTTP
// status codes.
func (s *Server) writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tonequeue.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, tonequeue.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, tonequeue.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, tonequeue.ErrStorageUnavailable), errors.Is(err, tonequeue.ErrBrokerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
	default:
		s.log.Error("unhandled core error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
