// Package devicetrust remembers devices that completed a second-factor
// challenge so they can skip the next one for a bounded period.
package devicetrust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultTrustDuration is how long a trusted device skips the challenge
const DefaultTrustDuration = 30 * 24 * time.Hour

// Service manages trusted device links
type Service struct {
	repo          Repository
	trustDuration time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithTrustDuration sets how long device trust lasts
func WithTrustDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.trustDuration = d
		}
	}
}

// NewService creates a Service backed by the given repository
func NewService(repo Repository, opts ...Option) *Service {
	service := &Service{
		repo:          repo,
		trustDuration: DefaultTrustDuration,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// TrustDuration returns the configured trust lifetime
func (s *Service) TrustDuration() time.Duration {
	return s.trustDuration
}

// Issue trusts the fingerprint for the user until now plus the trust
// duration. Re-issuing for an already trusted device refreshes the expiry.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, fingerprint string, now time.Time) (TrustedDevice, error) {
	if fingerprint == "" {
		return TrustedDevice{}, fmt.Errorf("fingerprint is required")
	}

	device := TrustedDevice{
		ID:          uuid.New(),
		UserID:      userID,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.trustDuration),
	}
	if err := s.repo.Upsert(ctx, device); err != nil {
		slog.Error("Failed to issue device trust", "userID", userID, "error", err)
		return TrustedDevice{}, fmt.Errorf("failed to issue device trust: %w", err)
	}

	slog.Info("Issued device trust", "userID", userID, "expiresAt", device.ExpiresAt)
	return device, nil
}

// IsTrusted reports whether the fingerprint is currently trusted for the
// user. Expired links count as absent; they are left in place rather than
// purged on read.
func (s *Service) IsTrusted(ctx context.Context, userID uuid.UUID, fingerprint string, now time.Time) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}

	device, err := s.repo.Find(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up device trust: %w", err)
	}
	return !device.IsExpired(now), nil
}

// ListDevices returns the user's trust links, including expired ones
func (s *Service) ListDevices(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error) {
	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	return devices, nil
}

// Revoke forgets every trusted device for the user
func (s *Service) Revoke(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		slog.Error("Failed to revoke device trust", "userID", userID, "error", err)
		return fmt.Errorf("failed to revoke device trust: %w", err)
	}
	slog.Info("Revoked all device trust", "userID", userID)
	return nil
}
