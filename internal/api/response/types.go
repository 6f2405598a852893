package response

import (
	"time"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/services/registration"
)

// Health is the response for the health endpoint
type Health struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Summary represents registration totals
type Summary struct {
	Participants   int `json:"participants"`
	WithAddress    int `json:"with_address"`
	WithoutAddress int `json:"without_address"`
	Referred       int `json:"referred"`
}

// SummaryFromModel converts model.Summary
func SummaryFromModel(s *model.Summary) Summary {
	return Summary{
		Participants:   s.Participants,
		WithAddress:    s.WithAddress,
		WithoutAddress: s.WithoutAddress,
		Referred:       s.Referred,
	}
}

// Participant represents a participant with referral stats
type Participant struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	PayoutAddress string    `json:"payout_address"`
	ReferrerID    string    `json:"referrer_id,omitempty"`
	Referrals     int       `json:"referrals"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ParticipantFromReport converts a registration.StatusReport
func ParticipantFromReport(r *registration.StatusReport) Participant {
	p := r.Participant
	return Participant{
		ID:            string(p.ID),
		DisplayName:   p.DisplayName,
		PayoutAddress: p.PayoutAddress,
		ReferrerID:    string(p.ReferrerID),
		Referrals:     r.Referrals,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// AuditEvent represents one audit log entry
type AuditEvent struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AuditEventFromModel converts model.AuditEvent
func AuditEventFromModel(e *model.AuditEvent) AuditEvent {
	return AuditEvent{
		ID:            e.ID,
		ParticipantID: string(e.ParticipantID),
		DisplayName:   e.DisplayName,
		Action:        string(e.Action),
		Detail:        e.Detail,
		OccurredAt:    e.OccurredAt,
	}
}

// AuditLog wraps a page of audit events
type AuditLog struct {
	Events []AuditEvent `json:"events"`
}

// AuditLogFromModel converts a list of model.AuditEvent
func AuditLogFromModel(events []*model.AuditEvent) AuditLog {
	out := make([]AuditEvent, len(events))
	for i, e := range events {
		out[i] = AuditEventFromModel(e)
	}
	return AuditLog{Events: out}
}
