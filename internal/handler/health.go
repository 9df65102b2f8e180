package handler

import (
	"net/http"

	"github.com/labwatch/internal/ws"
)

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// Health reports liveness with the number of open chat sockets. It answers 503 once
// the hub is shutting down so load balancers stop routing upgrades here.
func Health(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub.Closed() {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "shutting_down"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connections: hub.ConnectionCount()})
	}
}
