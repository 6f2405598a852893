package model

import "time"

// AuditAction names a notable participant action
type AuditAction string

const (
	AuditRegistered    AuditAction = "Registered"
	AuditWalletSaved   AuditAction = "Wallet saved"
	AuditWalletUpdated AuditAction = "Wallet updated"
)

// AuditEvent is an append-only record of a participant action.
// Events are never updated or deleted.
type AuditEvent struct {
	ID            string        `json:"id" csv:"id"`
	ParticipantID ParticipantID `json:"participant_id" csv:"user_id"`
	DisplayName   string        `json:"display_name" csv:"username"`
	Action        AuditAction   `json:"action" csv:"action"`
	Detail        string        `json:"detail" csv:"detail"`
	OccurredAt    time.Time     `json:"occurred_at" csv:"occurred_at"`
}
