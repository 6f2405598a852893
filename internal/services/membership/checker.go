// Package membership answers whether a participant belongs to the gated channel.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Status is the membership state reported for one user
type Status int

const (
	StatusUnknown Status = iota
	StatusMember
	StatusNotMember
)

func (s Status) String() string {
	switch s {
	case StatusMember:
		return "member"
	case StatusNotMember:
		return "not_member"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds a single oracle lookup
const DefaultTimeout = 5 * time.Second

// Fetcher looks up the raw membership of a user in a channel.
// The messaging gateway implements it.
type Fetcher interface {
	FetchChatMember(ctx context.Context, channel string, userID int64) (Status, error)
}

// FetcherFunc adapts a plain function to Fetcher
type FetcherFunc func(ctx context.Context, channel string, userID int64) (Status, error)

func (f FetcherFunc) FetchChatMember(ctx context.Context, channel string, userID int64) (Status, error) {
	return f(ctx, channel, userID)
}

// Checker is the membership oracle. It fails closed: any error, timeout or
// unknown answer is reported as "not a member".
type Checker struct {
	fetcher Fetcher
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Checker for channel. A non-positive timeout uses DefaultTimeout.
func New(fetcher Fetcher, channel string, timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		fetcher: fetcher,
		channel: channel,
		timeout: timeout,
		logger:  logger,
	}
}

// Channel returns the gated channel handle
func (c *Checker) Channel() string {
	return c.channel
}

// IsMember reports whether userID is a definite member of the channel
func (c *Checker) IsMember(ctx context.Context, userID int64) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		status Status
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := c.fetcher.FetchChatMember(ctx, c.channel, userID)
		done <- result{status: status, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = result{err: ctx.Err()}
	}

	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) {
			r.err = fmt.Errorf("membership lookup timed out after %s: %w", c.timeout, r.err)
		}
		c.logger.Warn("membership check failed",
			slog.Int64("user_id", userID),
			slog.String("channel", c.channel),
			slog.String("error", r.err.Error()),
		)
		return false
	}

	c.logger.Debug("membership checked",
		slog.Int64("user_id", userID),
		slog.String("status", r.status.String()),
	)
	return r.status == StatusMember
}
