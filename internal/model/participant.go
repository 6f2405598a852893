package model

import "time"

// ParticipantID is the opaque, stable identity assigned by the messaging gateway
type ParticipantID string

// Participant is one registered airdrop member.
// DisplayName may be empty and is not unique. PayoutAddress stays empty until
// submitted and ReferrerID is only ever set at creation.
type Participant struct {
	ID            ParticipantID `json:"id" csv:"user_id"`
	DisplayName   string        `json:"display_name" csv:"username"`
	PayoutAddress string        `json:"payout_address" csv:"wallet"`
	ReferrerID    ParticipantID `json:"referrer_id" csv:"referrer_id"`
	CreatedAt     time.Time     `json:"created_at" csv:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" csv:"updated_at"`
}

// HasPayoutAddress reports whether a payout address has been submitted
func (p *Participant) HasPayoutAddress() bool {
	return p.PayoutAddress != ""
}

// Clone returns a copy that can be handed out without sharing storage state
func (p *Participant) Clone() *Participant {
	c := *p
	return &c
}

// Summary holds the admin-facing registration totals
type Summary struct {
	Participants   int `json:"participants"`
	WithAddress    int `json:"with_address"`
	WithoutAddress int `json:"without_address"`
	Referred       int `json:"referred"`
}

// Summarize computes totals over a set of participants
func Summarize(participants []*Participant) Summary {
	var s Summary
	for _, p := range participants {
		s.Participants++
		if p.HasPayoutAddress() {
			s.WithAddress++
		}
		if p.ReferrerID != "" {
			s.Referred++
		}
	}
	s.WithoutAddress = s.Participants - s.WithAddress
	return s
}
