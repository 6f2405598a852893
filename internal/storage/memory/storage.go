package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	participants  map[model.ParticipantID]*model.Participant
	referralIndex map[model.ParticipantID]int
	auditEvents   []*model.AuditEvent
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		participants:  make(map[model.ParticipantID]*model.Participant),
		referralIndex: make(map[model.ParticipantID]int),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Close is a no-op
func (s *Storage) Close() error {
	return nil
}

// Participant operations

func (s *Storage) CreateParticipant(ctx context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; ok {
		return model.ErrParticipantExists
	}
	s.participants[p.ID] = p.Clone()
	if p.ReferrerID != "" {
		s.referralIndex[p.ReferrerID]++
	}
	return nil
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	return p.Clone(), nil
}

func (s *Storage) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participants := make([]*model.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p.Clone())
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].CreatedAt.Before(participants[j].CreatedAt)
	})
	return participants, nil
}

func (s *Storage) CountReferrals(ctx context.Context, referrer model.ParticipantID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referralIndex[referrer], nil
}

func (s *Storage) SetPayoutAddress(ctx context.Context, id model.ParticipantID, address string, at time.Time) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	if p.HasPayoutAddress() {
		return p.Clone(), model.ErrAlreadySubmitted
	}
	p.PayoutAddress = address
	p.UpdatedAt = at
	return p.Clone(), nil
}

// Audit operations

func (s *Storage) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.auditEvents = append(s.auditEvents, &e)
	return nil
}

func (s *Storage) ListAuditEvents(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.auditEvents)
	if limit <= 0 || limit > n {
		limit = n
	}
	// Newest first
	events := make([]*model.AuditEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		e := *s.auditEvents[i]
		events = append(events, &e)
	}
	return events, nil
}
