package attempt

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Attempt is one recorded verification outcome. Rows are append-only; the
// only deletion path is an explicit lockout clear, which removes failures.
type Attempt struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Method      string
	Success     bool
	IPAddress   string
	AttemptedAt time.Time
}

// Repository defines the interface for attempt storage operations
type Repository interface {
	// Append stores a new attempt row
	Append(ctx context.Context, attempt Attempt) error

	// FindFailuresSince returns the user's failed attempts at or after since,
	// oldest first
	FindFailuresSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]Attempt, error)

	// CountSince returns how many attempts (any outcome) the user made at or
	// after since
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// DeleteFailures removes the user's failed attempts. Successful rows are
	// retained as history.
	DeleteFailures(ctx context.Context, userID uuid.UUID) error
}
