package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/storage"
)

// auditField is the stream entry field holding the JSON-encoded event
const auditField = "event"

// errTxRetriesExhausted is returned when a watched key keeps changing
var errTxRetriesExhausted = errors.New("redis transaction retries exhausted")

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// watch runs fn in an optimistic transaction on key, retrying while
// another client modifies the key between WATCH and EXEC
func (s *Storage) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	retries := s.cfg.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxRetriesExhausted
}

// Participant operations

func (s *Storage) CreateParticipant(ctx context.Context, p *model.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	key := participantKey(p.ID)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrParticipantExists
		}

		// Row and indexes are written atomically
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, participantsIndexKey(), string(p.ID))
			if p.ReferrerID != "" {
				pipe.SAdd(ctx, referralsIndexKey(p.ReferrerID), string(p.ID))
			}
			return nil
		})
		return err
	})
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	return getParticipant(ctx, s.client, id)
}

// stringGetter is satisfied by both *redis.Client and a watching *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getParticipant(ctx context.Context, c stringGetter, id model.ParticipantID) (*model.Participant, error) {
	data, err := c.Get(ctx, participantKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrParticipantNotFound
		}
		return nil, err
	}

	var p model.Participant
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode participant %s: %w", id, err)
	}
	return &p, nil
}

func (s *Storage) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	ids, err := s.client.SMembers(ctx, participantsIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []*model.Participant{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKey(model.ParticipantID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	participants := make([]*model.Participant, 0, len(values))
	for i, val := range values {
		raw, ok := val.(string)
		if !ok {
			continue // Index entry without a row
		}
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode participant %s: %w", ids[i], err)
		}
		participants = append(participants, &p)
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].CreatedAt.Before(participants[j].CreatedAt)
	})
	return participants, nil
}

func (s *Storage) CountReferrals(ctx context.Context, referrer model.ParticipantID) (int, error) {
	n, err := s.client.SCard(ctx, referralsIndexKey(referrer)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Storage) SetPayoutAddress(ctx context.Context, id model.ParticipantID, address string, at time.Time) (*model.Participant, error) {
	key := participantKey(id)

	var result *model.Participant
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		p, err := getParticipant(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.HasPayoutAddress() {
			result = p
			return model.ErrAlreadySubmitted
		}

		p.PayoutAddress = address
		p.UpdatedAt = at
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			result = p
		}
		return err
	})
	return result, err
}

// Audit operations

func (s *Storage) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: auditStreamKey(),
		Values: map[string]any{auditField: string(data)},
	}).Err()
}

func (s *Storage) ListAuditEvents(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	var (
		messages []redis.XMessage
		err      error
	)
	// Newest first
	if limit > 0 {
		messages, err = s.client.XRevRangeN(ctx, auditStreamKey(), "+", "-", int64(limit)).Result()
	} else {
		messages, err = s.client.XRevRange(ctx, auditStreamKey(), "+", "-").Result()
	}
	if err != nil {
		return nil, err
	}

	events := make([]*model.AuditEvent, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values[auditField].(string)
		if !ok {
			continue // Skip foreign entries
		}
		var event model.AuditEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode audit event %s: %w", msg.ID, err)
		}
		events = append(events, &event)
	}
	return events, nil
}
