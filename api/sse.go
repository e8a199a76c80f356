package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/romanqed/tonequeue/hub"
)

type snapshotFrame struct {
	Status   string `json:"status"`
	Progress uint8  `json:"progress"`
	Message  string `json:"message,omitempty"`
	Attempts uint32 `json:"attempts"`
}

type progressFrame struct {
	Progress uint8  `json:"progress"`
	Message  string `json:"message,omitempty"`
}

type terminalFrame struct {
	Status      string  `json:"status"`
	ResultPath  *string `json:"result_path,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	ErrorDetail *string `json:"error_detail,omitempty"`
}

// handleSubscribeJob streams jobID's live event sequence as
// Server-Sent Events, per spec.md §6: one "snapshot" frame on
// connect, then "progress" frames, ending in exactly one "terminal"
// frame (or a "lagged" frame if the subscriber lagged). For a job that
// is already terminal on connect, the terminal frame is built from the
// snapshot and follows it directly.
func (s *Server) handleSubscribeJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	jobID, ok := s.parseJobID(w, r)
	if !ok {
		return
	}

	sub, err := s.core.SubscribeJob(r.Context(), owner, jobID)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-sub.Events:
			if !open {
				return
			}
			if !writeSSEEvent(w, event) {
				return
			}
			flusher.Flush()
			if snap, ok := event.(hub.SnapshotEvent); ok && snap.Status.Terminal() {
				writeSSEEvent(w, hub.TerminalEvent{Status: snap.Status, ResultPath: snap.ResultPath, ErrorKind: snap.ErrorKind, ErrorDetail: snap.ErrorDetail})
				flusher.Flush()
				return
			}
			if _, terminal := event.(hub.TerminalEvent); terminal {
				return
			}
			if _, lagged := event.(hub.LaggedEvent); lagged {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event hub.Event) bool {
	switch e := event.(type) {
	case hub.SnapshotEvent:
		return writeFrame(w, "snapshot", snapshotFrame{
			Status:   e.Status.String(),
			Progress: e.Progress,
			Message:  e.Message,
			Attempts: e.Attempts,
		})
	case hub.ProgressEvent:
		return writeFrame(w, "progress", progressFrame{Progress: e.Pct, Message: e.Msg})
	case hub.TerminalEvent:
		frame := terminalFrame{Status: e.Status.String(), ResultPath: e.ResultPath, ErrorDetail: e.ErrorDetail}
		if e.ErrorKind != "" {
			frame.ErrorKind = e.ErrorKind.String()
		}
		return writeFrame(w, "terminal", frame)
	case hub.LaggedEvent:
		return writeFrame(w, "lagged", struct{}{})
	default:
		return true
	}
}

func writeFrame(w http.ResponseWriter, event string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body)
	return err == nil
}
