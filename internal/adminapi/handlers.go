package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// taskView renders a record with its payload inline.
type taskView struct {
	ID               string           `json:"id"`
	OriginalTaskID   *string          `json:"original_task_id,omitempty"`
	TaskName         string           `json:"task_name"`
	QueueName        string           `json:"queue_name"`
	UniqueKey        *string          `json:"unique_key,omitempty"`
	State            banyantask.State `json:"state"`
	CurrentAttempt   int              `json:"current_attempt"`
	MaximumAttempts  int              `json:"maximum_attempts"`
	Payload          json.RawMessage  `json:"payload,omitempty"`
	Error            *string          `json:"error,omitempty"`
	ScheduledAt      time.Time        `json:"scheduled_at"`
	ScheduledToRunAt time.Time        `json:"scheduled_to_run_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}

func viewOf(r *banyantask.Record) taskView {
	v := taskView{
		ID:               r.ID,
		OriginalTaskID:   r.OriginalTaskID,
		TaskName:         r.TaskName,
		QueueName:        r.QueueName,
		UniqueKey:        r.UniqueKey,
		State:            r.State,
		CurrentAttempt:   r.CurrentAttempt,
		MaximumAttempts:  r.MaximumAttempts,
		Error:            r.Error,
		ScheduledAt:      r.ScheduledAt,
		ScheduledToRunAt: r.ScheduledToRunAt,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
	}
	if json.Valid(r.Payload) {
		v.Payload = r.Payload
	}
	return v
}

func viewsOf(recs []*banyantask.Record) []taskView {
	out := make([]taskView, 0, len(recs))
	for _, r := range recs {
		out = append(out, viewOf(r))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeErr(w http.ResponseWriter, status int, msg string, details string) {
	writeJSON(w, status, apiError{Error: msg, Details: details})
}

// writeStoreErr maps store sentinels to HTTP statuses.
func (s *Server) writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, banyantask.ErrUnknownTask):
		writeErr(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, banyantask.ErrInvalidStateTransition), errors.Is(err, banyantask.ErrNotRetryable):
		writeErr(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error("store request failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.client.Metrics(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	m, err := s.client.Metrics(r.Context())
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := banyantask.Filter{
		QueueName: q.Get("queue"),
		TaskName:  q.Get("task"),
	}
	if v := q.Get("state"); v != "" {
		st, err := banyantask.ParseState(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "validation_error", "unknown state")
			return
		}
		f.State = st
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		f.Limit = n
	}

	recs, err := s.client.List(r.Context(), f)
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": viewsOf(recs)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rec, err := s.client.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": viewOf(rec)})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	recs, err := s.client.Chain(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": viewsOf(recs)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.client.Cancel(r.Context(), id); err != nil {
		s.writeStoreErr(w, err)
		return
	}
	s.logger.Info("task cancelled", zap.String("task_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	retryID, err := s.client.Retry(r.Context(), id)
	if err != nil {
		s.writeStoreErr(w, err)
		return
	}
	if retryID == "" {
		writeErr(w, http.StatusConflict, "conflict", "no attempts left")
		return
	}
	s.logger.Info("task retried", zap.String("task_id", id), zap.String("retry_id", retryID))
	writeJSON(w, http.StatusCreated, map[string]string{"retry_id": retryID})
}
