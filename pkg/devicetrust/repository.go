package devicetrust

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no trust link exists for a user/fingerprint pair
var ErrNotFound = errors.New("trusted device not found")

// TrustedDevice links a user to a device fingerprint until ExpiresAt.
// The fingerprint is opaque here; how it was computed is the caller's concern.
type TrustedDevice struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Fingerprint string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the trust has lapsed at the given instant
func (d TrustedDevice) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Repository defines the interface for trusted device storage operations
type Repository interface {
	// Upsert stores the trust link, refreshing expiry when the pair exists
	Upsert(ctx context.Context, device TrustedDevice) error

	// Find returns the trust link for the user/fingerprint pair, expired or
	// not. Returns ErrNotFound when no link exists.
	Find(ctx context.Context, userID uuid.UUID, fingerprint string) (TrustedDevice, error)

	// ListByUser returns every trust link for the user
	ListByUser(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error)

	// DeleteByUser removes every trust link for the user
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}
