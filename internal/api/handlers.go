package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/beacon/internal/activity"
	"github.com/btouchard/beacon/internal/engine"
	"github.com/btouchard/beacon/internal/store"
)

type handler struct {
	engine *engine.Engine
}

func (h *handler) reportActivity(w http.ResponseWriter, r *http.Request) {
	var ev activity.Event
	if !decode(w, r, &ev) {
		return
	}
	if err := h.engine.ReportActivity(ev); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Sync(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TaskFilter{Status: q.Get("status"), Limit: 50}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = since
	}

	tasks, err := h.engine.Tasks(f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type createTaskRequest struct {
	ID        string `json:"task_id"`
	Title     string `json:"title"`
	ReviewRef string `json:"review_ref"`
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.engine.CreateTask(req.ID, req.Title, req.ReviewRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Task(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteTask(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setReviewRequest struct {
	ReviewRef string `json:"review_ref"`
}

func (h *handler) setReview(w http.ResponseWriter, r *http.Request) {
	var req setReviewRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.SetReviewRef(chi.URLParam(r, "id"), req.ReviewRef); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) cancelTask(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied": res.Applied,
		"from":    res.From,
		"to":      res.To,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeErr maps engine and store errors to HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, engine.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrExists), errors.Is(err, engine.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
