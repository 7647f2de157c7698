package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) timestamp() string {
	if s.clock == nil {
		return time.Now().Format(time.RFC3339)
	}
	return s.clock.Now().Format(time.RFC3339)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Message: msg, ErrorCode: code, Timestamp: s.timestamp()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
