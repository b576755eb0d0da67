package enrollment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrConfigNotFound is returned when a user has no second-factor config row
var ErrConfigNotFound = errors.New("two-factor config not found")

// ErrDirectiveNotFound is returned when no directive matches a token
var ErrDirectiveNotFound = errors.New("enrollment directive not found")

// ErrUserNotFound is returned when the directory has no such user
var ErrUserNotFound = errors.New("user not found")

// ConfigRepository defines the interface for second-factor config storage
type ConfigRepository interface {
	// Get returns the user's config row, ErrConfigNotFound when absent
	Get(ctx context.Context, userID uuid.UUID) (TwoFactorConfig, error)

	// Upsert creates or replaces the user's config row
	Upsert(ctx context.Context, config TwoFactorConfig) error

	// Delete removes the user's config row
	Delete(ctx context.Context, userID uuid.UUID) error
}

// DirectiveRepository defines the interface for enrollment directive storage
type DirectiveRepository interface {
	// Create stores a new directive
	Create(ctx context.Context, directive Directive) error

	// GetByToken returns the directive for a token, ErrDirectiveNotFound
	// when absent
	GetByToken(ctx context.Context, token string) (Directive, error)

	// MarkUsed records first consumption. Returns false when the directive
	// was already used, so concurrent consumers cannot both win.
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Revoke marks the directive revoked
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListByEmail returns every directive issued for the email address
	ListByEmail(ctx context.Context, email string) ([]Directive, error)
}

// UserDirectory is the user-lookup collaborator. The orchestrator only
// needs identity attributes and the mandatory-2FA flag; accounts live
// elsewhere.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uuid.UUID) (DirectoryUser, error)
}
