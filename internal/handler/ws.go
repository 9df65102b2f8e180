package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/middleware"
	"github.com/labwatch/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler builds the upgrade endpoint. allowedOrigins is the CORS list; "*" or
// empty allows every origin.
func NewWSHandler(hub *ws.Hub, allowedOrigins []string) *WSHandler {
	h := &WSHandler{hub: hub}
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			h.allowedOrigins = nil
			break
		}
		if o != "" {
			h.allowedOrigins = append(h.allowedOrigins, o)
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// ServeWS upgrades an authenticated request (see middleware.SessionAuth) and hands the
// socket to the hub.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if h.hub.Closed() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("ws upgrade user=%d: %v", userID, err)
		return
	}

	client := ws.NewClient(h.hub, conn, userID)
	if err := h.hub.Register(client); err != nil {
		code := websocket.CloseTryAgainLater
		if errors.Is(err, ws.ErrHubClosed) {
			code = websocket.CloseGoingAway
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
		client.Close()
		return
	}
	client.Start()
}
