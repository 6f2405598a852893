// Package csvfile stores participants and audit events in flat CSV files.
//
// The whole data set is held in memory and each mutation rewrites the
// affected file through a temporary file and a rename, so a reader never
// observes a half-written file.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
)

const (
	ParticipantsFile = "participants.csv"
	AuditFile        = "audit.csv"
)

// Storage is a CSV-file implementation of the storage interface
type Storage struct {
	mu  sync.Mutex
	dir string

	participants []*model.Participant
	byID         map[model.ParticipantID]*model.Participant
	auditEvents  []*model.AuditEvent
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Open loads existing files from dir, creating the directory when needed
func Open(dir string) (*Storage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("csv directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv directory: %w", err)
	}

	s := &Storage{
		dir:  dir,
		byID: make(map[model.ParticipantID]*model.Participant),
	}
	if err := readFile(filepath.Join(dir, ParticipantsFile), &s.participants); err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	for _, p := range s.participants {
		s.byID[p.ID] = p
	}
	if err := readFile(filepath.Join(dir, AuditFile), &s.auditEvents); err != nil {
		return nil, fmt.Errorf("load audit events: %w", err)
	}
	return s, nil
}

// Close is a no-op; every mutation is already on disk
func (s *Storage) Close() error {
	return nil
}

// Participant operations

func (s *Storage) CreateParticipant(ctx context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return model.ErrParticipantExists
	}

	row := p.Clone()
	next := append(s.participants[:len(s.participants):len(s.participants)], row)
	if err := writeFile(filepath.Join(s.dir, ParticipantsFile), &next); err != nil {
		return fmt.Errorf("write participants: %w", err)
	}
	s.participants = next
	s.byID[row.ID] = row
	return nil
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	return p.Clone(), nil
}

func (s *Storage) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participants := make([]*model.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p.Clone())
	}
	sort.SliceStable(participants, func(i, j int) bool {
		return participants[i].CreatedAt.Before(participants[j].CreatedAt)
	})
	return participants, nil
}

func (s *Storage) CountReferrals(ctx context.Context, referrer model.ParticipantID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.participants {
		if p.ReferrerID == referrer {
			count++
		}
	}
	return count, nil
}

func (s *Storage) SetPayoutAddress(ctx context.Context, id model.ParticipantID, address string, at time.Time) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[id]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	if current.HasPayoutAddress() {
		return current.Clone(), model.ErrAlreadySubmitted
	}

	updated := current.Clone()
	updated.PayoutAddress = address
	updated.UpdatedAt = at

	next := make([]*model.Participant, len(s.participants))
	for i, p := range s.participants {
		if p.ID == id {
			next[i] = updated
		} else {
			next[i] = p
		}
	}
	if err := writeFile(filepath.Join(s.dir, ParticipantsFile), &next); err != nil {
		return nil, fmt.Errorf("write participants: %w", err)
	}
	s.participants = next
	s.byID[id] = updated
	return updated.Clone(), nil
}

// Audit operations

func (s *Storage) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	next := append(s.auditEvents[:len(s.auditEvents):len(s.auditEvents)], &e)
	if err := writeFile(filepath.Join(s.dir, AuditFile), &next); err != nil {
		return fmt.Errorf("write audit events: %w", err)
	}
	s.auditEvents = next
	return nil
}

func (s *Storage) ListAuditEvents(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.auditEvents)
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]*model.AuditEvent, 0, n)
	for i := len(s.auditEvents) - 1; i >= 0 && len(events) < n; i-- {
		e := *s.auditEvents[i]
		events = append(events, &e)
	}
	return events, nil
}

// readFile unmarshals path into out; a missing or empty file leaves out empty
func readFile[T any](path string, out *[]*T) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil
		}
		return err
	}
	return nil
}

// writeFile replaces path with the marshalled rows via a temp file and rename
func writeFile[T any](path string, rows *[]*T) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := gocsv.MarshalFile(rows, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
