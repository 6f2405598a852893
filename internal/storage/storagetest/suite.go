// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
)

// Suite runs the storage contract against a backend built by NewStorage.
// Backend packages embed it to add their own checks.
type Suite struct {
	suite.Suite
	NewStorage func(t *testing.T) storage.Storage

	Storage storage.Storage
	Ctx     context.Context
	Now     time.Time
}

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage(s.T())
	s.Ctx = context.Background()
	s.Now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) TearDownTest() {
	if s.Storage != nil {
		_ = s.Storage.Close()
	}
}

// Participant builds a participant row created at s.Now
func (s *Suite) Participant(id, name string) *model.Participant {
	return &model.Participant{
		ID:          model.ParticipantID(id),
		DisplayName: name,
		CreatedAt:   s.Now,
		UpdatedAt:   s.Now,
	}
}

// Participant tests

func (s *Suite) TestCreateAndGetParticipant() {
	p := s.Participant("1001", "alice")
	p.ReferrerID = "2002"

	err := s.Storage.CreateParticipant(s.Ctx, p)
	s.Require().NoError(err)

	got, err := s.Storage.GetParticipant(s.Ctx, "1001")
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.Equal("alice", got.DisplayName)
	s.Equal("", got.PayoutAddress)
	s.Equal(model.ParticipantID("2002"), got.ReferrerID)
	s.True(p.CreatedAt.Equal(got.CreatedAt))
}

func (s *Suite) TestGetParticipantNotFound() {
	_, err := s.Storage.GetParticipant(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrParticipantNotFound)
}

func (s *Suite) TestCreateParticipantTwiceKeepsOneRow() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", "alice")))

	err := s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", "alice-again"))
	s.ErrorIs(err, model.ErrParticipantExists)

	all, err := s.Storage.ListParticipants(s.Ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Equal("alice", all[0].DisplayName)
}

func (s *Suite) TestCreateParticipantConcurrentlyKeepsOneRow() {
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", fmt.Sprintf("alice-%d", i)))
		}(i)
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
		} else {
			s.ErrorIs(err, model.ErrParticipantExists)
		}
	}
	s.Equal(1, created)

	all, err := s.Storage.ListParticipants(s.Ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *Suite) TestListParticipants() {
	for i, id := range []string{"1", "2", "3"} {
		p := s.Participant(id, "user"+id)
		p.CreatedAt = s.Now.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, p))
	}

	all, err := s.Storage.ListParticipants(s.Ctx)
	s.Require().NoError(err)
	s.Len(all, 3)

	ids := make([]model.ParticipantID, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	s.ElementsMatch([]model.ParticipantID{"1", "2", "3"}, ids)
}

func (s *Suite) TestListParticipantsEmpty() {
	all, err := s.Storage.ListParticipants(s.Ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *Suite) TestCountReferrals() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1", "referrer")))
	for _, id := range []string{"2", "3"} {
		p := s.Participant(id, "friend")
		p.ReferrerID = "1"
		s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, p))
	}
	other := s.Participant("4", "other")
	other.ReferrerID = "2"
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, other))

	count, err := s.Storage.CountReferrals(s.Ctx, "1")
	s.Require().NoError(err)
	s.Equal(2, count)

	count, err = s.Storage.CountReferrals(s.Ctx, "2")
	s.Require().NoError(err)
	s.Equal(1, count)

	count, err = s.Storage.CountReferrals(s.Ctx, "4")
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *Suite) TestDuplicateCreateDoesNotCountReferralTwice() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1", "referrer")))
	p := s.Participant("2", "friend")
	p.ReferrerID = "1"
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, p))
	s.ErrorIs(s.Storage.CreateParticipant(s.Ctx, p), model.ErrParticipantExists)

	count, err := s.Storage.CountReferrals(s.Ctx, "1")
	s.Require().NoError(err)
	s.Equal(1, count)
}

// Payout address tests

func (s *Suite) TestSetPayoutAddress() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", "alice")))
	later := s.Now.Add(time.Hour)

	updated, err := s.Storage.SetPayoutAddress(s.Ctx, "1001", "addr-one", later)
	s.Require().NoError(err)
	s.Equal("addr-one", updated.PayoutAddress)
	s.True(later.Equal(updated.UpdatedAt))

	got, err := s.Storage.GetParticipant(s.Ctx, "1001")
	s.Require().NoError(err)
	s.Equal("addr-one", got.PayoutAddress)
}

func (s *Suite) TestSetPayoutAddressOnlyOnce() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", "alice")))
	_, err := s.Storage.SetPayoutAddress(s.Ctx, "1001", "addr-one", s.Now)
	s.Require().NoError(err)

	for _, addr := range []string{"addr-two", "addr-three"} {
		existing, err := s.Storage.SetPayoutAddress(s.Ctx, "1001", addr, s.Now)
		s.ErrorIs(err, model.ErrAlreadySubmitted)
		s.Require().NotNil(existing)
		s.Equal("addr-one", existing.PayoutAddress)
	}

	got, err := s.Storage.GetParticipant(s.Ctx, "1001")
	s.Require().NoError(err)
	s.Equal("addr-one", got.PayoutAddress)
}

func (s *Suite) TestSetPayoutAddressNotFound() {
	_, err := s.Storage.SetPayoutAddress(s.Ctx, "missing", "addr", s.Now)
	s.ErrorIs(err, model.ErrParticipantNotFound)
}

func (s *Suite) TestSetPayoutAddressConcurrentlyWritesOnce() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", "alice")))

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Storage.SetPayoutAddress(s.Ctx, "1001", fmt.Sprintf("addr-%d", i), s.Now)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	saved := 0
	for err := range results {
		if err == nil {
			saved++
		} else {
			s.ErrorIs(err, model.ErrAlreadySubmitted)
		}
	}
	s.Equal(1, saved)
}

func (s *Suite) TestReturnedParticipantIsDetached() {
	s.Require().NoError(s.Storage.CreateParticipant(s.Ctx, s.Participant("1001", "alice")))

	got, err := s.Storage.GetParticipant(s.Ctx, "1001")
	s.Require().NoError(err)
	got.PayoutAddress = "mutated"

	again, err := s.Storage.GetParticipant(s.Ctx, "1001")
	s.Require().NoError(err)
	s.Equal("", again.PayoutAddress)
}

// Audit tests

func (s *Suite) TestAppendAndListAuditEvents() {
	for i, action := range []model.AuditAction{model.AuditRegistered, model.AuditWalletSaved} {
		err := s.Storage.AppendAuditEvent(s.Ctx, &model.AuditEvent{
			ID:            fmt.Sprintf("evt-%d", i),
			ParticipantID: "1001",
			DisplayName:   "alice",
			Action:        action,
			Detail:        "detail",
			OccurredAt:    s.Now.Add(time.Duration(i) * time.Second),
		})
		s.Require().NoError(err)
	}

	events, err := s.Storage.ListAuditEvents(s.Ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(model.AuditWalletSaved, events[0].Action)
	s.Equal(model.AuditRegistered, events[1].Action)
	s.Equal(model.ParticipantID("1001"), events[1].ParticipantID)
	s.Equal("alice", events[1].DisplayName)
	s.Equal("evt-0", events[1].ID)
}

func (s *Suite) TestListAuditEventsLimit() {
	for i := 0; i < 5; i++ {
		err := s.Storage.AppendAuditEvent(s.Ctx, &model.AuditEvent{
			ID:            fmt.Sprintf("evt-%d", i),
			ParticipantID: model.ParticipantID(fmt.Sprintf("%d", i)),
			Action:        model.AuditRegistered,
			OccurredAt:    s.Now.Add(time.Duration(i) * time.Second),
		})
		s.Require().NoError(err)
	}

	events, err := s.Storage.ListAuditEvents(s.Ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("evt-4", events[0].ID)
	s.Equal("evt-3", events[1].ID)
}

func (s *Suite) TestListAuditEventsEmpty() {
	events, err := s.Storage.ListAuditEvents(s.Ctx, 10)
	s.Require().NoError(err)
	s.Empty(events)
}
