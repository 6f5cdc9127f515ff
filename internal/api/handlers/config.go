package handlers

import (
	"net/http"

	"github.com/eargollo/hash256/internal/config"
)

// ConfigHandler handles GET /api/config.
type ConfigHandler struct {
	Cfg *config.Config
}

// Get returns the effective configuration. Listen address, log level and the
// database path carry `json:"-"` and are never exposed.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Cfg == nil {
		writeJSON(w, http.StatusOK, config.Default())
		return
	}
	writeJSON(w, http.StatusOK, h.Cfg)
}
