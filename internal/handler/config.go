package handler

import (
	"net/http"

	"github.com/labwatch/internal/config"
)

// ConfigHandler serves the public chat parameters the browser client needs.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

type chatConfigResponse struct {
	Path                string  `json:"path"`
	HeartbeatIntervalMs int64   `json:"heartbeatIntervalMs"`
	MaxMessageSize      int64   `json:"maxMessageSize"`
	FrameRate           float64 `json:"frameRate"`
}

// GetChatConfig returns the WebSocket endpoint and limits (no auth).
func (h *ConfigHandler) GetChatConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chatConfigResponse{
		Path:                h.cfg.WS.Path,
		HeartbeatIntervalMs: h.cfg.WS.HeartbeatInterval.Milliseconds(),
		MaxMessageSize:      h.cfg.WS.MaxMessageSize,
		FrameRate:           h.cfg.WS.FrameRate,
	})
}
