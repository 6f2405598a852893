// Package registration implements the airdrop registration engine:
// eligibility, one-time registration, one-time payout address submission,
// status queries and the admin summary.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Belogorec/marsu-bot2/internal/dependencies/clock"
	"github.com/Belogorec/marsu-bot2/internal/dependencies/idgen"
	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
)

// DefaultStoreTimeout bounds each storage call
const DefaultStoreTimeout = 5 * time.Second

// Oracle reports channel membership. Implementations must fail closed.
type Oracle interface {
	IsMember(ctx context.Context, userID int64) bool
}

// Requester identifies the sender of an inbound event
type Requester struct {
	ID          model.ParticipantID
	Username    string
	DisplayName string
}

// Label returns the name stored alongside the participant row
func (r Requester) Label() string {
	if r.Username != "" {
		return r.Username
	}
	return r.DisplayName
}

// StatusReport is the participant's view of their own registration
type StatusReport struct {
	Participant *model.Participant
	Referrals   int
}

// Config holds configuration for the registration service
type Config struct {
	// Admins lists identities or usernames allowed to read the summary
	Admins       []string
	StoreTimeout time.Duration
}

// Service is the registration engine
type Service struct {
	storage storage.Storage
	oracle  Oracle
	clock   clock.Clock
	ids     idgen.Generator
	logger  *slog.Logger

	admins       map[string]bool
	storeTimeout time.Duration
	locks        *identityLocks
}

// New creates a new registration Service
func New(
	storage storage.Storage,
	oracle Oracle,
	clock clock.Clock,
	ids idgen.Generator,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	admins := make(map[string]bool, len(cfg.Admins))
	for _, a := range cfg.Admins {
		if key := adminKey(a); key != "" {
			admins[key] = true
		}
	}
	return &Service{
		storage:      storage,
		oracle:       oracle,
		clock:        clock,
		ids:          ids,
		logger:       logger,
		admins:       admins,
		storeTimeout: cfg.StoreTimeout,
		locks:        newIdentityLocks(),
	}
}

// Register creates a participant for an eligible requester.
// An existing participant is returned together with model.ErrAlreadyRegistered.
func (s *Service) Register(ctx context.Context, req Requester, referralToken string) (*model.Participant, error) {
	userID, err := strconv.ParseInt(string(req.ID), 10, 64)
	if err != nil || !s.oracle.IsMember(ctx, userID) {
		return nil, model.ErrIneligible
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	existing, err := s.getParticipant(ctx, req.ID)
	if err == nil {
		return existing, model.ErrAlreadyRegistered
	}
	if !errors.Is(err, model.ErrParticipantNotFound) {
		return nil, s.backendError("lookup participant", err)
	}

	now := s.clock.Now()
	p := &model.Participant{
		ID:          req.ID,
		DisplayName: req.Label(),
		ReferrerID:  s.resolveReferrer(ctx, req.ID, referralToken),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	storeCtx, cancel := s.storeContext(ctx)
	err = s.storage.CreateParticipant(storeCtx, p)
	cancel()
	if errors.Is(err, model.ErrParticipantExists) {
		// Another process won the race
		existing, getErr := s.getParticipant(ctx, req.ID)
		if getErr != nil {
			return nil, s.backendError("lookup participant", getErr)
		}
		return existing, model.ErrAlreadyRegistered
	}
	if err != nil {
		return nil, s.backendError("create participant", err)
	}

	detail := ""
	if p.ReferrerID != "" {
		detail = "referred by " + string(p.ReferrerID)
	}
	s.appendAudit(ctx, p, model.AuditRegistered, detail)

	s.logger.Info("participant registered",
		slog.String("participant_id", string(p.ID)),
		slog.String("referrer_id", string(p.ReferrerID)),
	)
	return p, nil
}

// SubmitAddress records the payout address of a registered participant.
// The address can be set once; later attempts return the stored participant
// together with model.ErrAlreadySubmitted.
func (s *Service) SubmitAddress(ctx context.Context, req Requester, rawText string) (*model.Participant, error) {
	address := model.NormalizePayoutAddress(rawText)
	if err := model.ValidatePayoutAddress(address); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	storeCtx, cancel := s.storeContext(ctx)
	p, err := s.storage.SetPayoutAddress(storeCtx, req.ID, address, s.clock.Now())
	cancel()
	switch {
	case errors.Is(err, model.ErrParticipantNotFound):
		return nil, model.ErrNotRegistered
	case errors.Is(err, model.ErrAlreadySubmitted):
		return p, model.ErrAlreadySubmitted
	case err != nil:
		return nil, s.backendError("set payout address", err)
	}

	s.appendAudit(ctx, p, model.AuditWalletSaved, address)

	s.logger.Info("payout address saved", slog.String("participant_id", string(p.ID)))
	return p, nil
}

// Status reports the participant's address and invite count
func (s *Service) Status(ctx context.Context, id model.ParticipantID) (*StatusReport, error) {
	p, err := s.getParticipant(ctx, id)
	if errors.Is(err, model.ErrParticipantNotFound) {
		return nil, model.ErrNotRegistered
	}
	if err != nil {
		return nil, s.backendError("lookup participant", err)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	referrals, err := s.storage.CountReferrals(storeCtx, id)
	if err != nil {
		return nil, s.backendError("count referrals", err)
	}

	return &StatusReport{Participant: p, Referrals: referrals}, nil
}

// AdminSummary returns registration totals to allow-listed requesters
func (s *Service) AdminSummary(ctx context.Context, req Requester) (*model.Summary, error) {
	if !s.IsAdmin(req) {
		s.logger.Warn("admin summary denied",
			slog.String("participant_id", string(req.ID)),
			slog.String("username", req.Username),
		)
		return nil, model.ErrAccessDenied
	}

	return s.Totals(ctx)
}

// Totals computes registration totals without an allow-list check.
// Callers must have authorized the request themselves.
func (s *Service) Totals(ctx context.Context) (*model.Summary, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	participants, err := s.storage.ListParticipants(storeCtx)
	if err != nil {
		return nil, s.backendError("list participants", err)
	}

	summary := model.Summarize(participants)
	return &summary, nil
}

// AuditLog returns up to limit audit events, newest first; limit <= 0 means all
func (s *Service) AuditLog(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	events, err := s.storage.ListAuditEvents(storeCtx, limit)
	if err != nil {
		return nil, s.backendError("list audit events", err)
	}
	return events, nil
}

// IsAdmin reports whether the requester's identity or username is allow-listed
func (s *Service) IsAdmin(req Requester) bool {
	if s.admins[adminKey(string(req.ID))] {
		return true
	}
	return req.Username != "" && s.admins[adminKey(req.Username)]
}

// resolveReferrer accepts a referral token only when it names another
// existing participant; otherwise the referrer is left empty.
func (s *Service) resolveReferrer(ctx context.Context, self model.ParticipantID, token string) model.ParticipantID {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	referrer, ok := model.ParseReferralToken(token)
	if !ok || referrer == self {
		s.logger.Debug("referral token ignored", slog.String("token", token))
		return ""
	}
	if _, err := s.getParticipant(ctx, referrer); err != nil {
		if !errors.Is(err, model.ErrParticipantNotFound) {
			s.logger.Warn("referrer lookup failed",
				slog.String("referrer_id", string(referrer)),
				slog.String("error", err.Error()),
			)
		}
		return ""
	}
	return referrer
}

func (s *Service) getParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.storage.GetParticipant(ctx, id)
}

// appendAudit records an audit event. Failures are logged only.
func (s *Service) appendAudit(ctx context.Context, p *model.Participant, action model.AuditAction, detail string) {
	event := &model.AuditEvent{
		ID:            s.ids.NewID(),
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Action:        action,
		Detail:        detail,
		OccurredAt:    s.clock.Now(),
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.storage.AppendAuditEvent(ctx, event); err != nil {
		s.logger.Error("failed to append audit event",
			slog.String("participant_id", string(p.ID)),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) backendError(op string, err error) error {
	s.logger.Error("storage call failed", slog.String("op", op), slog.String("error", err.Error()))
	return fmt.Errorf("%w: %s: %w", model.ErrBackendUnavailable, op, err)
}

func adminKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}
