package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Item is one pending outbound message.
type Item struct {
	Destination string
	Payload     string
	EnqueuedAt  time.Time
}

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeDropped     Outcome = "dropped"
)

// Sender delivers a single message to a destination.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, destination, text string) error

func (f SenderFunc) Send(ctx context.Context, destination, text string) error {
	return f(ctx, destination, text)
}

// RateLimitedError is returned by a Sender when the destination asks the
// caller to wait RetryAfter before sending again.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// AsRateLimited extracts a *RateLimitedError from err.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
