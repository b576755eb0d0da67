package backupcode

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BackupCode is one stored recovery code. Only the bcrypt hash is persisted;
// the clear text exists once, at generation time.
type BackupCode struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CodeHash   string
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// Consumed reports whether the code has already been used
func (c BackupCode) Consumed() bool {
	return c.ConsumedAt != nil
}

// Repository defines the interface for backup code storage operations
type Repository interface {
	// Replace atomically swaps the user's code set for a new one
	Replace(ctx context.Context, userID uuid.UUID, hashes []string, createdAt time.Time) error

	// FindByUser returns every code for the user, consumed or not
	FindByUser(ctx context.Context, userID uuid.UUID) ([]BackupCode, error)

	// MarkConsumed records first use of a code. Returns false when the code
	// was already consumed, so concurrent submissions cannot both win.
	MarkConsumed(ctx context.Context, codeID uuid.UUID, at time.Time) (bool, error)

	// CountActive returns how many unconsumed codes the user has left
	CountActive(ctx context.Context, userID uuid.UUID) (int, error)

	// DeleteAll removes every code for the user
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}
