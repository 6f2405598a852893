package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Belogorec/marsu-bot2/internal/dependencies/clock"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("operator token hash not configured")
)

// Service authenticates operators by bearer token against a bcrypt hash.
// Verified tokens are remembered for SessionDuration so bcrypt runs once
// per token rather than once per request.
type Service struct {
	hash  []byte
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[string]time.Time

	sessionDuration time.Duration
}

// Config holds configuration for the auth service
type Config struct {
	// TokenHash is the bcrypt hash of the operator token
	TokenHash       string
	SessionDuration time.Duration
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 15 * time.Minute,
	}
}

// New creates a new auth Service
func New(clock clock.Clock, cfg Config) (*Service, error) {
	hash := strings.TrimSpace(cfg.TokenHash)
	if hash == "" {
		return nil, ErrNotConfigured
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid operator token hash: %w", err)
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	return &Service{
		hash:            []byte(hash),
		clock:           clock,
		sessions:        make(map[string]time.Time),
		sessionDuration: cfg.SessionDuration,
	}, nil
}

// Authenticate checks a bearer token
func (s *Service) Authenticate(token string) error {
	if token == "" {
		return ErrInvalidCredentials
	}
	key := sessionKey(token)
	now := s.clock.Now()

	s.mu.RLock()
	expires, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok && now.Before(expires) {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(token)); err != nil {
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	s.sessions[key] = now.Add(s.sessionDuration)
	for k, exp := range s.sessions {
		if !now.Before(exp) {
			delete(s.sessions, k)
		}
	}
	s.mu.Unlock()
	return nil
}

// HashToken returns the bcrypt hash to configure for token
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// sessionKey avoids keeping raw tokens in memory
func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
