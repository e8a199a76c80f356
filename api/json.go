package api

import (
	"encoding/json"
	"net/http"

	"github.com/romanqed/tonequeue/job"
)

// jobView is the JSON wire shape of a persisted job record (spec.md
// §6). It excludes the store's internal scheduling fields
// (LockedUntil, NextRunAt), matching job.Snapshot.
type jobView struct {
	ID          string  `json:"id"`
	ShootoutID  string  `json:"shootout_id"`
	Status      string  `json:"status"`
	Progress    uint8   `json:"progress"`
	Message     string  `json:"message,omitempty"`
	Attempts    uint32  `json:"attempts"`
	ResultPath  *string `json:"result_path,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	ErrorDetail *string `json:"error_detail,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func newJobView(j *job.Job) jobView {
	v := jobView{
		ID:          j.Id.String(),
		ShootoutID:  j.ShootoutId.String(),
		Status:      j.Status.String(),
		Progress:    j.Progress,
		Message:     j.Message,
		Attempts:    j.Attempts,
		ResultPath:  j.ResultPath,
		ErrorDetail: j.ErrorDetail,
		CreatedAt:   j.CreatedAt.Format(timeLayout),
		UpdatedAt:   j.UpdatedAt.Format(timeLayout),
	}
	if j.ErrorKind != job.ErrorKindNone {
		v.ErrorKind = j.ErrorKind.String()
	}
	return v
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

type jobPageView struct {
	Jobs  []jobView `json:"jobs"`
	Total int64     `json:"total"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeInvalidShootout(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid shootout", Field: field, Reason: reason})
}
