package storage

import (
	"context"
	"time"

	"github.com/Belogorec/marsu-bot2/internal/model"
)

// Storage defines the interface for participant and audit persistence.
// Backends are interchangeable; each must make CreateParticipant and
// SetPayoutAddress conditional so concurrent callers cannot duplicate a row
// or overwrite a submitted address.
type Storage interface {
	// Participant operations
	CreateParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error)
	ListParticipants(ctx context.Context) ([]*model.Participant, error)
	CountReferrals(ctx context.Context, referrer model.ParticipantID) (int, error)

	// SetPayoutAddress sets the address only while it is still empty. When an
	// address is already present the stored participant is returned together
	// with model.ErrAlreadySubmitted.
	SetPayoutAddress(ctx context.Context, id model.ParticipantID, address string, at time.Time) (*model.Participant, error)

	// Audit operations
	AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error
	ListAuditEvents(ctx context.Context, limit int) ([]*model.AuditEvent, error)

	Close() error
}
