package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
)

// maxUpdateBytes bounds a webhook request body
const maxUpdateBytes = 1 << 20

// UpdateHandler processes one Bot API update
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// WebhookHandler receives updates pushed by the Bot API
type WebhookHandler struct {
	secret  []byte
	updates UpdateHandler
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook handler guarded by secret
func NewWebhookHandler(secret string, updates UpdateHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:  []byte(secret),
		updates: updates,
		logger:  logger,
	}
}

// Receive handles POST /telegram/webhook/{secret}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	given := []byte(mux.Vars(r)["secret"])
	if len(h.secret) == 0 || subtle.ConstantTimeCompare(given, h.secret) != 1 {
		WriteError(w, NewNotFoundError())
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		WriteError(w, NewInvalidRequestError("invalid update body"))
		return
	}

	// The Bot API may drop the connection; finish handling regardless
	h.updates.HandleUpdate(context.WithoutCancel(r.Context()), update)

	w.WriteHeader(http.StatusOK)
}
