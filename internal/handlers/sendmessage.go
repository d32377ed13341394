package handlers

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/eldtechnologies/sendmessage/internal/api/middleware"
	"github.com/eldtechnologies/sendmessage/internal/relay"
)

// relayContentType is the content type existing relay clients expect.
const relayContentType = "text/json"

// maxMultipartMemory caps multipart fields held in memory. The body itself
// is already limited by the router.
const maxMultipartMemory = 64 << 10

// SendMessage handles a relay request. Every outcome is reported with HTTP
// 200 and a relay code in the body.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	err := parseRelayForm(r)
	req := relay.RequestFromValues(r.Form)
	if err != nil {
		// Query parameters survive a bad body; the relay reports the body
		// once the caller has proven the secret.
		h.logger.Warn().
			Err(err).
			Str("ip", middleware.ClientIP(r)).
			Str("content_type", r.Header.Get("Content-Type")).
			Msg("failed to parse relay request body")
		req.Malformed = true
	}

	res := h.relay.Handle(r.Context(), middleware.ClientIP(r), req)

	w.Header().Set("Content-Type", relayContentType)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(res)
}

// parseRelayForm fills r.Form from the query string and a form or multipart
// body. Other body types are ignored.
func parseRelayForm(r *http.Request) error {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "multipart/form-data" {
		return r.ParseMultipartForm(maxMultipartMemory)
	}
	return r.ParseForm()
}

// SendMessageGet accepts GET on the relay path and does nothing.
func (h *Handler) SendMessageGet(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
