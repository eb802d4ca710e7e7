package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gigachat-relay/internal/middleware"
	"gigachat-relay/internal/models"
)

// maxRequestBody caps the /predict payload. Conversations are text only.
const maxRequestBody = 2 * 1024 * 1024 // 2MB

type chatRelayer interface {
	Relay(ctx context.Context, identity string, messages []json.RawMessage) (*models.ChatReply, error)
}

type RelayHandler struct {
	relay chatRelayer
}

func NewRelayHandler(relay chatRelayer) *RelayHandler {
	return &RelayHandler{relay: relay}
}

// Predict relays the caller's conversation upstream and returns the reply.
func (h *RelayHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxRequestBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("REQUEST_TOO_LARGE", "Request body exceeds 2MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("REQUEST_TOO_LARGE", "Request body exceeds 2MB limit", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	reply, err := h.relay.Relay(r.Context(), middleware.GetIdentity(r.Context()), req.Messages)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// Auth confirms credentials; reaching it means Basic auth succeeded.
func (h *RelayHandler) Auth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.AuthStatus{Success: true})
}
