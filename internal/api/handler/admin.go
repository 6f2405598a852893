package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Belogorec/marsu-bot2/internal/api/response"
	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/services/registration"
)

const (
	// DefaultAuditLimit is used when no limit query parameter is given
	DefaultAuditLimit = 50
	// MaxAuditLimit caps a single audit page
	MaxAuditLimit = 1000
)

// AdminService is the registration engine as seen by operators
type AdminService interface {
	Totals(ctx context.Context) (*model.Summary, error)
	Status(ctx context.Context, id model.ParticipantID) (*registration.StatusReport, error)
	AuditLog(ctx context.Context, limit int) ([]*model.AuditEvent, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	service AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service AdminService) *AdminHandler {
	return &AdminHandler{
		service: service,
	}
}

// Summary handles GET /api/v1/summary
func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Totals(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SummaryFromModel(summary))
}

// Participant handles GET /api/v1/participants/{id}
func (h *AdminHandler) Participant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		WriteError(w, NewInvalidRequestError("participant id is required"))
		return
	}

	report, err := h.service.Status(r.Context(), model.ParticipantID(id))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ParticipantFromReport(report))
}

// Audit handles GET /api/v1/audit?limit=N
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := DefaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxAuditLimit {
			WriteError(w, NewInvalidRequestError("limit must be between 1 and "+strconv.Itoa(MaxAuditLimit)))
			return
		}
		limit = n
	}

	events, err := h.service.AuditLog(r.Context(), limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AuditLogFromModel(events))
}
