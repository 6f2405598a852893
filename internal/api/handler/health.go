package handler

import (
	"net/http"

	"github.com/Belogorec/marsu-bot2/internal/api/response"
)

// HealthHandler reports liveness
type HealthHandler struct {
	storage string
}

// NewHealthHandler creates a new health handler for the named storage backend
func NewHealthHandler(storage string) *HealthHandler {
	return &HealthHandler{storage: storage}
}

// Get handles GET /api/v1/health
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok", Storage: h.storage})
}
