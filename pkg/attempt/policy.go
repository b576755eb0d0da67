package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts is the failure count that triggers a lockout
	DefaultMaxAttempts = 5
	// DefaultWindow is the sliding window over which failures are counted
	DefaultWindow = 15 * time.Minute
	// DefaultLockoutDuration is how long a lockout lasts from the most
	// recent qualifying failure
	DefaultLockoutDuration = 15 * time.Minute
)

// Decision is the outcome of a lockout evaluation
type Decision struct {
	Locked     bool
	RetryAfter time.Duration
	Failures   int
}

// LockoutPolicy derives lockout decisions from the attempt ledger
type LockoutPolicy struct {
	repo            Repository
	maxAttempts     int
	window          time.Duration
	lockoutDuration time.Duration
}

// PolicyOption configures a LockoutPolicy
type PolicyOption func(*LockoutPolicy)

// WithMaxAttempts sets the failure count that triggers a lockout
func WithMaxAttempts(max int) PolicyOption {
	return func(p *LockoutPolicy) {
		if max > 0 {
			p.maxAttempts = max
		}
	}
}

// WithWindow sets the sliding window over which failures are counted
func WithWindow(window time.Duration) PolicyOption {
	return func(p *LockoutPolicy) {
		if window > 0 {
			p.window = window
		}
	}
}

// WithLockoutDuration sets how long a lockout lasts
func WithLockoutDuration(duration time.Duration) PolicyOption {
	return func(p *LockoutPolicy) {
		if duration > 0 {
			p.lockoutDuration = duration
		}
	}
}

// NewLockoutPolicy creates a LockoutPolicy over the given repository
func NewLockoutPolicy(repo Repository, opts ...PolicyOption) *LockoutPolicy {
	policy := &LockoutPolicy{
		repo:            repo,
		maxAttempts:     DefaultMaxAttempts,
		window:          DefaultWindow,
		lockoutDuration: DefaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(policy)
	}
	return policy
}

// MaxAttempts returns the configured failure threshold
func (p *LockoutPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Evaluate decides whether the user is locked out at the given instant.
// A user is locked when the window ending at their most recent failure
// holds at least maxAttempts failures, and the lock lasts until
// lockoutDuration has passed since that failure. The counting window is
// anchored at the last failure, not at now, so a lockout longer than the
// window does not expire early when the failures age out of it. The
// decision is derived on every call; nothing is stored.
func (p *LockoutPolicy) Evaluate(ctx context.Context, userID uuid.UUID, now time.Time) (Decision, error) {
	// far enough back to see every failure that can still hold a lock
	failures, err := p.repo.FindFailuresSince(ctx, userID, now.Add(-(p.window + p.lockoutDuration)))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load failed attempts: %w", err)
	}
	if len(failures) == 0 {
		return Decision{}, nil
	}

	lastFailure := failures[len(failures)-1].AttemptedAt
	windowStart := lastFailure.Add(-p.window)
	qualifying := 0
	for _, failure := range failures {
		if !failure.AttemptedAt.Before(windowStart) {
			qualifying++
		}
	}

	decision := Decision{Failures: qualifying}
	if qualifying < p.maxAttempts {
		return decision, nil
	}

	until := lastFailure.Add(p.lockoutDuration)
	if now.Before(until) {
		decision.Locked = true
		decision.RetryAfter = until.Sub(now)
	}
	return decision, nil
}

// ClearLockout removes the user's failed attempts so the next evaluation
// passes. Successful attempts are kept as history.
func (p *LockoutPolicy) ClearLockout(ctx context.Context, userID uuid.UUID) error {
	if err := p.repo.DeleteFailures(ctx, userID); err != nil {
		slog.Error("Failed to clear lockout", "userID", userID, "error", err)
		return fmt.Errorf("failed to clear lockout: %w", err)
	}
	slog.Info("Cleared lockout", "userID", userID)
	return nil
}
