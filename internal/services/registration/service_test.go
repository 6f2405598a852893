package registration

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Belogorec/marsu-bot2/internal/dependencies/mocks"
	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
	"github.com/Belogorec/marsu-bot2/internal/storage/memory"
	"github.com/Belogorec/marsu-bot2/internal/testutil"
)

var (
	addressA = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	addressB = "3n5g9" + strings.Repeat("A", 39)
)

// fakeOracle answers membership from a mutable set
type fakeOracle struct {
	mu      sync.Mutex
	members map[int64]bool
	calls   int
}

func (o *fakeOracle) IsMember(ctx context.Context, userID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.members[userID]
}

func (o *fakeOracle) set(userID int64, member bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.members[userID] = member
}

// faultyStorage injects errors in front of a working store
type faultyStorage struct {
	storage.Storage
	getErr    error
	createErr error
	setErr    error
	auditErr  error
	listErr   error
}

func (f *faultyStorage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Storage.GetParticipant(ctx, id)
}

func (f *faultyStorage) CreateParticipant(ctx context.Context, p *model.Participant) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Storage.CreateParticipant(ctx, p)
}

func (f *faultyStorage) SetPayoutAddress(ctx context.Context, id model.ParticipantID, address string, at time.Time) (*model.Participant, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	return f.Storage.SetPayoutAddress(ctx, id, address, at)
}

func (f *faultyStorage) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	return f.Storage.AppendAuditEvent(ctx, event)
}

func (f *faultyStorage) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Storage.ListParticipants(ctx)
}

type ServiceSuite struct {
	suite.Suite
	storage *faultyStorage
	oracle  *fakeOracle
	clock   *mocks.MockClock
	ids     *mocks.MockIDGenerator
	service *Service
	logs    *testutil.LogBuffer
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = &faultyStorage{Storage: memory.New()}
	s.oracle = &fakeOracle{members: map[int64]bool{1001: true, 2002: true, 3003: true}}
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.ids = mocks.NewMockIDGenerator()
	var logger *slog.Logger
	logger, s.logs = testutil.BufferLogger()
	s.service = New(s.storage, s.oracle, s.clock, s.ids, Config{
		Admins: []string{"@Operator", "9999"},
	}, logger)
	s.ctx = context.Background()
}

func requester(id, username string) Requester {
	return Requester{ID: model.ParticipantID(id), Username: username, DisplayName: "Name " + id}
}

func (s *ServiceSuite) register(id string) *model.Participant {
	p, err := s.service.Register(s.ctx, requester(id, "user"+id), "")
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) auditActions() []model.AuditAction {
	events, err := s.storage.ListAuditEvents(s.ctx, 0)
	s.Require().NoError(err)
	actions := make([]model.AuditAction, len(events))
	for i, e := range events {
		actions[i] = e.Action
	}
	return actions
}

// Register tests

func (s *ServiceSuite) TestRegisterCreatesParticipant() {
	s.ids.Queue("evt-1")

	p, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.Require().NoError(err)

	s.Equal(model.ParticipantID("1001"), p.ID)
	s.Equal("alice", p.DisplayName)
	s.Empty(p.PayoutAddress)
	s.Empty(p.ReferrerID)
	s.Equal(s.clock.Now(), p.CreatedAt)

	stored, err := s.storage.GetParticipant(s.ctx, "1001")
	s.Require().NoError(err)
	s.Equal(p, stored)

	events, err := s.storage.ListAuditEvents(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("evt-1", events[0].ID)
	s.Equal(model.AuditRegistered, events[0].Action)
	s.Equal("alice", events[0].DisplayName)
}

func (s *ServiceSuite) TestRegisterFallsBackToDisplayName() {
	p, err := s.service.Register(s.ctx, Requester{ID: "1001", DisplayName: "Alice"}, "")
	s.Require().NoError(err)
	s.Equal("Alice", p.DisplayName)
}

func (s *ServiceSuite) TestRegisterTwiceKeepsOneRow() {
	first := s.register("1001")

	s.clock.Advance(time.Hour)
	again, err := s.service.Register(s.ctx, requester("1001", "renamed"), "")
	s.ErrorIs(err, model.ErrAlreadyRegistered)
	s.Require().NotNil(again)
	s.Equal(first.CreatedAt, again.CreatedAt)
	s.Equal("user1001", again.DisplayName)

	all, err := s.storage.ListParticipants(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Equal([]model.AuditAction{model.AuditRegistered}, s.auditActions())
}

func (s *ServiceSuite) TestRegisterConcurrentlyCreatesOneRow() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.Register(s.ctx, requester("1001", "alice"), ""); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, created)
	all, err := s.storage.ListParticipants(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Equal(0, s.service.locks.size())
}

func (s *ServiceSuite) TestRegisterIneligibleCreatesNothing() {
	p, err := s.service.Register(s.ctx, requester("4004", "bob"), "")
	s.ErrorIs(err, model.ErrIneligible)
	s.Nil(p)

	_, err = s.storage.GetParticipant(s.ctx, "4004")
	s.ErrorIs(err, model.ErrParticipantNotFound)
	s.Empty(s.auditActions())
}

func (s *ServiceSuite) TestRegisterAfterJoiningChannel() {
	_, err := s.service.Register(s.ctx, requester("4004", "bob"), "")
	s.Require().ErrorIs(err, model.ErrIneligible)

	s.oracle.set(4004, true)
	p, err := s.service.Register(s.ctx, requester("4004", "bob"), "")
	s.Require().NoError(err)
	s.Equal(model.ParticipantID("4004"), p.ID)
}

func (s *ServiceSuite) TestRegisterNonNumericIdentityIsIneligible() {
	_, err := s.service.Register(s.ctx, requester("alice", "alice"), "")
	s.ErrorIs(err, model.ErrIneligible)
	s.Equal(0, s.oracle.calls)
}

func (s *ServiceSuite) TestRegisterChecksMembershipBeforeExistence() {
	s.register("1001")
	s.oracle.set(1001, false)

	_, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.ErrorIs(err, model.ErrIneligible)
}

func (s *ServiceSuite) TestRegisterStoresExistingReferrer() {
	s.register("1001")

	p, err := s.service.Register(s.ctx, requester("2002", "bob"), "ref_1001")
	s.Require().NoError(err)
	s.Equal(model.ParticipantID("1001"), p.ReferrerID)

	events, err := s.storage.ListAuditEvents(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("referred by 1001", events[0].Detail)
}

func (s *ServiceSuite) TestRegisterAcceptsBareNumericReferral() {
	s.register("1001")

	p, err := s.service.Register(s.ctx, requester("2002", "bob"), "1001")
	s.Require().NoError(err)
	s.Equal(model.ParticipantID("1001"), p.ReferrerID)
}

func (s *ServiceSuite) TestRegisterDropsUnknownReferrer() {
	p, err := s.service.Register(s.ctx, requester("2002", "bob"), "ref_5555")
	s.Require().NoError(err)
	s.Empty(p.ReferrerID)
}

func (s *ServiceSuite) TestRegisterDropsSelfReferral() {
	p, err := s.service.Register(s.ctx, requester("1001", "alice"), "ref_1001")
	s.Require().NoError(err)
	s.Empty(p.ReferrerID)
}

func (s *ServiceSuite) TestRegisterDropsMalformedReferral() {
	s.register("1001")
	tokens := []string{"ref_", "ref_abc", "hello", "ref_10x01", strings.Repeat("1", 21)}
	for i, token := range tokens {
		id := int64(5000 + i)
		s.oracle.set(id, true)

		p, err := s.service.Register(s.ctx, Requester{ID: model.ParticipantID(strconv.FormatInt(id, 10))}, token)
		s.Require().NoError(err)
		s.Empty(p.ReferrerID, "token %q", token)
	}
}

func (s *ServiceSuite) TestRegisterBackendFailure() {
	cause := errors.New("connection refused")
	s.storage.getErr = cause

	p, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.Nil(p)
	s.ErrorIs(err, model.ErrBackendUnavailable)
	s.ErrorIs(err, cause)
}

func (s *ServiceSuite) TestRegisterCreateFailure() {
	s.storage.createErr = errors.New("disk full")

	_, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.ErrorIs(err, model.ErrBackendUnavailable)
}

func (s *ServiceSuite) TestRegisterLostRaceReportsAlreadyRegistered() {
	s.register("1001")
	// Simulate another writer creating the row between lookup and insert
	s.storage.createErr = model.ErrParticipantExists
	s.storage.Storage = &hideOnce{Storage: s.storage.Storage, id: "1001"}

	p, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.ErrorIs(err, model.ErrAlreadyRegistered)
	s.Require().NotNil(p)
	s.Equal(model.ParticipantID("1001"), p.ID)
}

func (s *ServiceSuite) TestRegisterSurvivesAuditFailure() {
	s.storage.auditErr = errors.New("audit sink down")

	p, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.Require().NoError(err)
	s.NotNil(p)
}

// hideOnce reports a participant as missing on the first lookup
type hideOnce struct {
	storage.Storage
	id     model.ParticipantID
	hidden bool
}

func (h *hideOnce) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	if id == h.id && !h.hidden {
		h.hidden = true
		return nil, model.ErrParticipantNotFound
	}
	return h.Storage.GetParticipant(ctx, id)
}

// SubmitAddress tests

func (s *ServiceSuite) TestSubmitAddressSaves() {
	s.register("1001")
	s.clock.Advance(time.Minute)

	p, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), "  "+addressA+"\n")
	s.Require().NoError(err)
	s.Equal(addressA, p.PayoutAddress)
	s.Equal(s.clock.Now(), p.UpdatedAt)

	s.Equal([]model.AuditAction{model.AuditWalletSaved, model.AuditRegistered}, s.auditActions())
}

func (s *ServiceSuite) TestSubmitAddressNotRegistered() {
	_, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.ErrorIs(err, model.ErrNotRegistered)
}

func (s *ServiceSuite) TestSubmitAddressInvalidLeavesRowUnchanged() {
	s.register("1001")

	for _, raw := range []string{"short", "", addressA + "x", "0" + addressA[1:], "I" + addressA[1:], "hello world"} {
		_, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), raw)
		s.ErrorIs(err, model.ErrInvalidAddress, "input %q", raw)
	}

	p, err := s.storage.GetParticipant(s.ctx, "1001")
	s.Require().NoError(err)
	s.Empty(p.PayoutAddress)
}

func (s *ServiceSuite) TestSubmitAddressInvalidWhenNotRegistered() {
	_, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), "short")
	s.ErrorIs(err, model.ErrInvalidAddress)
}

func (s *ServiceSuite) TestSubmitAddressOnlyOnce() {
	s.register("1001")
	_, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		p, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressB)
		s.ErrorIs(err, model.ErrAlreadySubmitted)
		s.Require().NotNil(p)
		s.Equal(addressA, p.PayoutAddress)
	}

	stored, err := s.storage.GetParticipant(s.ctx, "1001")
	s.Require().NoError(err)
	s.Equal(addressA, stored.PayoutAddress)
	s.Equal([]model.AuditAction{model.AuditWalletSaved, model.AuditRegistered}, s.auditActions())
}

func (s *ServiceSuite) TestSubmitAddressConcurrentlyWritesOnce() {
	s.register("1001")

	var wg sync.WaitGroup
	var mu sync.Mutex
	saved := 0
	for i := 0; i < 20; i++ {
		addr := addressA
		if i%2 == 1 {
			addr = addressB
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addr); err == nil {
				mu.Lock()
				saved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, saved)
	s.Equal(0, s.service.locks.size())
}

func (s *ServiceSuite) TestSubmitAddressBackendFailure() {
	s.register("1001")
	s.storage.setErr = errors.New("timeout")

	_, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.ErrorIs(err, model.ErrBackendUnavailable)
}

// Status tests

func (s *ServiceSuite) TestStatusNotRegistered() {
	_, err := s.service.Status(s.ctx, "1001")
	s.ErrorIs(err, model.ErrNotRegistered)
}

func (s *ServiceSuite) TestStatusLifecycle() {
	s.register("1001")

	report, err := s.service.Status(s.ctx, "1001")
	s.Require().NoError(err)
	s.Empty(report.Participant.PayoutAddress)
	s.Equal(0, report.Referrals)

	_, err = s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.Require().NoError(err)

	report, err = s.service.Status(s.ctx, "1001")
	s.Require().NoError(err)
	s.Equal(addressA, report.Participant.PayoutAddress)
}

func (s *ServiceSuite) TestStatusCountsReferrals() {
	s.register("1001")
	_, err := s.service.Register(s.ctx, requester("2002", "bob"), "ref_1001")
	s.Require().NoError(err)
	_, err = s.service.Register(s.ctx, requester("3003", "carol"), "1001")
	s.Require().NoError(err)

	report, err := s.service.Status(s.ctx, "1001")
	s.Require().NoError(err)
	s.Equal(2, report.Referrals)

	report, err = s.service.Status(s.ctx, "2002")
	s.Require().NoError(err)
	s.Equal(0, report.Referrals)
}

func (s *ServiceSuite) TestStatusBackendFailure() {
	s.storage.getErr = errors.New("down")

	_, err := s.service.Status(s.ctx, "1001")
	s.ErrorIs(err, model.ErrBackendUnavailable)
}

// AdminSummary tests

func (s *ServiceSuite) TestAdminSummaryDenied() {
	_, err := s.service.AdminSummary(s.ctx, requester("1001", "alice"))
	s.ErrorIs(err, model.ErrAccessDenied)
	s.Contains(s.logs.String(), `"level":"WARN","msg":"admin summary denied"`)
}

func (s *ServiceSuite) TestAdminSummaryByUsername() {
	s.register("1001")
	_, err := s.service.Register(s.ctx, requester("2002", "bob"), "ref_1001")
	s.Require().NoError(err)
	_, err = s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.Require().NoError(err)

	summary, err := s.service.AdminSummary(s.ctx, requester("7777", "operator"))
	s.Require().NoError(err)
	s.Equal(model.Summary{Participants: 2, WithAddress: 1, WithoutAddress: 1, Referred: 1}, *summary)
}

func (s *ServiceSuite) TestAdminSummaryByIdentity() {
	summary, err := s.service.AdminSummary(s.ctx, Requester{ID: "9999"})
	s.Require().NoError(err)
	s.Equal(0, summary.Participants)
}

func (s *ServiceSuite) TestAdminSummaryBackendFailure() {
	s.storage.listErr = errors.New("down")

	_, err := s.service.AdminSummary(s.ctx, requester("9999", ""))
	s.ErrorIs(err, model.ErrBackendUnavailable)
}

func (s *ServiceSuite) TestIsAdmin() {
	s.True(s.service.IsAdmin(Requester{ID: "1", Username: "OPERATOR"}))
	s.True(s.service.IsAdmin(Requester{ID: "9999"}))
	s.False(s.service.IsAdmin(Requester{ID: "1", Username: ""}))
	s.False(s.service.IsAdmin(Requester{ID: "1", Username: "someone"}))
}

func (s *ServiceSuite) TestAuditLog() {
	s.register("1001")
	_, err := s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.Require().NoError(err)

	events, err := s.service.AuditLog(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(model.AuditWalletSaved, events[0].Action)
	s.Equal(addressA, events[0].Detail)

	events, err = s.service.AuditLog(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(events, 2)
}

// End to end scenario

func (s *ServiceSuite) TestRegisterSubmitRejectStatusScenario() {
	p, err := s.service.Register(s.ctx, requester("1001", "alice"), "")
	s.Require().NoError(err)
	s.Equal(model.Participant{
		ID:          "1001",
		DisplayName: "alice",
		CreatedAt:   s.clock.Now(),
		UpdatedAt:   s.clock.Now(),
	}, *p)

	_, err = s.service.SubmitAddress(s.ctx, requester("1001", "alice"), addressA)
	s.Require().NoError(err)

	_, err = s.service.SubmitAddress(s.ctx, requester("1001", "alice"), "short")
	s.ErrorIs(err, model.ErrInvalidAddress)

	report, err := s.service.Status(s.ctx, "1001")
	s.Require().NoError(err)
	s.Equal(addressA, report.Participant.PayoutAddress)
	s.Len(report.Participant.PayoutAddress, 44)
}
