package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eargollo/hash256/internal/session"
)

// HashHandler drives the control loop: start, cancel, path edits, clear and
// display preferences.
type HashHandler struct {
	Session *session.Loop
}

type pathRequest struct {
	Path string `json:"path"`
}

type preferencesPatch struct {
	Uppercase *bool `json:"uppercase"`
	AutoHash  *bool `json:"auto_hash"`
}

// Create handles POST /api/hash. It hashes the given path, superseding any
// run in progress.
func (h *HashHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tok, err := h.Session.Start(r.Context(), req.Path)
	if err != nil {
		writeSessionError(w, "hash: start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"token":  uint64(tok),
		"status": "running",
		"path":   req.Path,
	})
}

// Cancel handles DELETE /api/hash/current.
func (h *HashHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Cancel(r.Context()); err != nil {
		writeSessionError(w, "hash: cancel", err)
		return
	}
	h.writeView(w, r)
}

// SetPath handles PUT /api/path. An edited path may auto-start a run.
func (h *HashHandler) SetPath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.Session.SetPath(r.Context(), req.Path); err != nil {
		writeSessionError(w, "hash: set path", err)
		return
	}
	h.writeView(w, r)
}

// Clear handles POST /api/clear.
func (h *HashHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Clear(r.Context()); err != nil {
		writeSessionError(w, "hash: clear", err)
		return
	}
	h.writeView(w, r)
}

// Preferences handles PATCH /api/preferences. Only supplied fields change.
func (h *HashHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	var patch preferencesPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Uppercase != nil {
		if err := h.Session.SetUppercase(r.Context(), *patch.Uppercase); err != nil {
			writeSessionError(w, "hash: set uppercase", err)
			return
		}
	}
	if patch.AutoHash != nil {
		if err := h.Session.SetAutoHash(r.Context(), *patch.AutoHash); err != nil {
			writeSessionError(w, "hash: set auto hash", err)
			return
		}
	}
	h.writeView(w, r)
}

func (h *HashHandler) writeView(w http.ResponseWriter, r *http.Request) {
	v, err := h.Session.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, "hash: snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// writeSessionError maps session errors onto HTTP status codes.
func writeSessionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyPath):
		writeError(w, http.StatusBadRequest, "EMPTY_PATH", "A file path is required")
	case errors.Is(err, session.ErrNoActiveRun):
		writeError(w, http.StatusNotFound, "NO_ACTIVE_RUN", "No hash is currently running")
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, "HASH_RUNNING", "A hash is in progress")
	case errors.Is(err, session.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "The server is shutting down")
	default:
		slog.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
