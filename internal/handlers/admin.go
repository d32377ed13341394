package handlers

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/eldtechnologies/sendmessage/internal/relay"
)

// SettingsResponse is the admin view of the relay configuration.
type SettingsResponse struct {
	Enabled    bool     `json:"enabled"`
	Secret     string   `json:"secret"`
	AllowedIPs []string `json:"allowed_ips"`
}

// UpdateSettingsRequest updates any subset of the relay configuration.
type UpdateSettingsRequest struct {
	Enabled    *bool     `json:"enabled,omitempty"`
	Secret     *string   `json:"secret,omitempty"`
	AllowedIPs *[]string `json:"allowed_ips,omitempty"`
}

func (h *Handler) settingsView() SettingsResponse {
	return SettingsResponse{
		Enabled:    h.settings.Enabled(),
		Secret:     h.settings.Secret(),
		AllowedIPs: h.settings.AllowedIPs(),
	}
}

// GetSettings returns the current relay configuration.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.settingsView())
}

// UpdateSettings persists the provided fields.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Validate everything before writing anything
	if req.Secret != nil {
		if strings.TrimSpace(*req.Secret) == "" || *req.Secret != strings.TrimSpace(*req.Secret) {
			h.Error(w, http.StatusBadRequest, "secret must be non-empty without surrounding whitespace")
			return
		}
	}
	if req.AllowedIPs != nil {
		for _, ip := range *req.AllowedIPs {
			if net.ParseIP(strings.TrimSpace(ip)) == nil {
				h.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid IP address: %q", ip))
				return
			}
		}
	}

	ctx := r.Context()
	if req.Secret != nil {
		if err := h.settings.SetSecret(ctx, *req.Secret); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to save secret")
			return
		}
	}
	if req.Enabled != nil {
		if err := h.settings.SetEnabled(ctx, *req.Enabled); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to save enabled flag")
			return
		}
	}
	if req.AllowedIPs != nil {
		if err := h.settings.SetAllowedIPs(ctx, *req.AllowedIPs); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to save allowed IPs")
			return
		}
	}

	h.JSON(w, http.StatusOK, h.settingsView())
}

// RegenerateSecret replaces the shared secret with a random one.
func (h *Handler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	if _, err := h.settings.RegenerateSecret(r.Context()); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save secret")
		return
	}
	h.JSON(w, http.StatusOK, h.settingsView())
}

// TestSendRequest is a message sent from the admin API, bypassing the shared
// secret and IP allowlist.
type TestSendRequest struct {
	FromUser     string `json:"from_user"`
	FromResource string `json:"from_resource,omitempty"`
	ToUser       string `json:"to_user"`
	Content      string `json:"content"`
}

// TestSend delivers a message through the relay and reports the relay result.
// The relay must still be enabled.
func (h *Handler) TestSend(w http.ResponseWriter, r *http.Request) {
	var req TestSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.FromUser) == "" || strings.TrimSpace(req.ToUser) == "" {
		h.Error(w, http.StatusBadRequest, "from_user and to_user are required")
		return
	}
	if req.FromResource == "" {
		req.FromResource = "admin"
	}

	err := h.relay.Send(r.Context(), req.FromUser, req.FromResource, req.ToUser, req.Content)
	res := relay.ResultOf(err)
	h.logger.Info().
		Str("from", req.FromUser).
		Str("to", req.ToUser).
		Int("code", int(res.Code)).
		Msg("admin test message")

	h.JSON(w, http.StatusOK, res)
}
