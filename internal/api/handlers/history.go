package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/eargollo/hash256/internal/db"
)

// HistoryHandler handles GET /api/history.
type HistoryHandler struct {
	DB *sql.DB // nil when history is disabled
}

// List returns reconciled runs newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		writeError(w, http.StatusNotFound, "HISTORY_DISABLED", "Run history is disabled")
		return
	}
	limit, offset := parsePagination(r)

	runs, err := db.ListRuns(r.Context(), h.DB, limit, offset)
	if err != nil {
		slog.Error("history list: query", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	total, err := db.CountRuns(r.Context(), h.DB)
	if err != nil {
		slog.Error("history list: count", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	writeJSON(w, http.StatusOK, ListResponse[db.Run]{
		Items:  runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
