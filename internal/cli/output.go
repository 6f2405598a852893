package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		o.printHealth(v)
	case Summary:
		o.printSummary(v)
	case Participant:
		o.printParticipant(v)
	case AuditLog:
		o.printAuditLog(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type (matches API)
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Summary response type
type Summary struct {
	Participants   int `json:"participants"`
	WithAddress    int `json:"with_address"`
	WithoutAddress int `json:"without_address"`
	Referred       int `json:"referred"`
}

// Participant response type
type Participant struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	PayoutAddress string    `json:"payout_address"`
	ReferrerID    string    `json:"referrer_id,omitempty"`
	Referrals     int       `json:"referrals"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AuditEvent response type
type AuditEvent struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AuditLog response type
type AuditLog struct {
	Events []AuditEvent `json:"events"`
}

func (o *Output) printHealth(h HealthResult) {
	_, _ = fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	if h.Storage != "" {
		_, _ = fmt.Fprintf(o.w, "Storage: %s\n", h.Storage)
	}
}

func (o *Output) printSummary(s Summary) {
	_, _ = fmt.Fprintf(o.w, "Participants:           %d\n", s.Participants)
	_, _ = fmt.Fprintf(o.w, "With payout address:    %d\n", s.WithAddress)
	_, _ = fmt.Fprintf(o.w, "Without payout address: %d\n", s.WithoutAddress)
	_, _ = fmt.Fprintf(o.w, "Referred:               %d\n", s.Referred)
}

func (o *Output) printParticipant(p Participant) {
	name := p.DisplayName
	if name == "" {
		name = "-"
	}
	address := p.PayoutAddress
	if address == "" {
		address = "(not submitted)"
	}
	_, _ = fmt.Fprintf(o.w, "Participant: %s (%s)\n", name, p.ID)
	_, _ = fmt.Fprintf(o.w, "Payout address: %s\n", address)
	if p.ReferrerID != "" {
		_, _ = fmt.Fprintf(o.w, "Referred by: %s\n", p.ReferrerID)
	}
	_, _ = fmt.Fprintf(o.w, "Referrals: %d\n", p.Referrals)
	_, _ = fmt.Fprintf(o.w, "Registered: %s\n", p.CreatedAt.UTC().Format(time.RFC3339))
}

func (o *Output) printAuditLog(l AuditLog) {
	if len(l.Events) == 0 {
		_, _ = fmt.Fprintln(o.w, "No audit events")
		return
	}
	for _, e := range l.Events {
		line := fmt.Sprintf("%s  %-14s %s", e.OccurredAt.UTC().Format(time.RFC3339), e.Action, e.ParticipantID)
		if e.DisplayName != "" {
			line += " (" + e.DisplayName + ")"
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		_, _ = fmt.Fprintln(o.w, line)
	}
}
