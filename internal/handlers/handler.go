package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/relay"
	"github.com/eldtechnologies/sendmessage/internal/settings"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	relay    *relay.Service
	settings *settings.Settings
	logger   zerolog.Logger
	checks   map[string]Pinger
}

// NewHandler creates a new Handler. checks names the dependencies reported
// by the health endpoint.
func NewHandler(relaySvc *relay.Service, st *settings.Settings, logger zerolog.Logger, checks map[string]Pinger) *Handler {
	return &Handler{relay: relaySvc, settings: st, logger: logger, checks: checks}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
