// Package sqlite provides a SQLite-backed participant storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
	"github.com/Belogorec/marsu-bot2/internal/storage/sqlite/migrations"
	"github.com/Belogorec/marsu-bot2/internal/storage/sqlitemigrate"
)

// Store persists participants and audit events in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Ensure Store implements the interface
var _ storage.Storage = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer keeps conditional updates free of SQLITE_BUSY churn
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const participantColumns = `id, display_name, payout_address, referrer_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	var (
		p         model.Participant
		id        string
		referrer  string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&id, &p.DisplayName, &p.PayoutAddress, &referrer, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ID = model.ParticipantID(id)
	p.ReferrerID = model.ParticipantID(referrer)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// CreateParticipant inserts one participant row.
func (s *Store) CreateParticipant(ctx context.Context, p *model.Participant) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO participants (`+participantColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.ID),
		p.DisplayName,
		p.PayoutAddress,
		string(p.ReferrerID),
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrParticipantExists
		}
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// GetParticipant returns one participant by identity.
func (s *Store) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	return getParticipant(ctx, s.sqlDB, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getParticipant(ctx context.Context, q queryRower, id model.ParticipantID) (*model.Participant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, string(id))
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns every participant in creation order.
func (s *Store) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := []*model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// CountReferrals counts participants invited by referrer.
func (s *Store) CountReferrals(ctx context.Context, referrer model.ParticipantID) (int, error) {
	var count int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE referrer_id = ?`, string(referrer),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return count, nil
}

// SetPayoutAddress sets the address with a conditional update on the empty value.
func (s *Store) SetPayoutAddress(ctx context.Context, id model.ParticipantID, address string, at time.Time) (*model.Participant, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payout update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE participants SET payout_address = ?, updated_at = ? WHERE id = ? AND payout_address = ''`,
		address, toMillis(at), string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("set payout address: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set payout address: %w", err)
	}

	p, err := getParticipant(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return p, model.ErrAlreadySubmitted
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payout update: %w", err)
	}
	return p, nil
}

// AppendAuditEvent inserts one audit row.
func (s *Store) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO audit_events (id, participant_id, display_name, action, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		string(event.ParticipantID),
		event.DisplayName,
		string(event.Action),
		event.Detail,
		toMillis(event.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the newest audit events first.
func (s *Store) ListAuditEvents(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, participant_id, display_name, action, detail, occurred_at
		 FROM audit_events ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := []*model.AuditEvent{}
	for rows.Next() {
		var (
			e             model.AuditEvent
			participantID string
			action        string
			occurredAt    int64
		)
		if err := rows.Scan(&e.ID, &participantID, &e.DisplayName, &action, &e.Detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ParticipantID = model.ParticipantID(participantID)
		e.Action = model.AuditAction(action)
		e.OccurredAt = fromMillis(occurredAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
