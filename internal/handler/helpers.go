package handler

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labwatch/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes before touching the response, so an encoding failure still yields
// a clean 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Errorf("writeJSON encode %T: %v", data, err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
