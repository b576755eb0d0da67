// Package backupcode issues and redeems single-use recovery codes.
package backupcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vaultshare/mfa/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCodeCount is the number of codes issued per set
	DefaultCodeCount = 10
	// CodeLength is the fixed length of a recovery code
	CodeLength = 10
)

// codeAlphabet omits characters users confuse when reading codes back
// (0/O, 1/I/L)
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Vault manages a user's recovery code set
type Vault struct {
	repo       Repository
	bcryptCost int
	codeCount  int
}

// VaultOption configures a Vault
type VaultOption func(*Vault)

// WithBcryptCost overrides the hash cost, mainly to keep tests fast
func WithBcryptCost(cost int) VaultOption {
	return func(v *Vault) {
		v.bcryptCost = cost
	}
}

// WithCodeCount overrides the number of codes per generated set
func WithCodeCount(count int) VaultOption {
	return func(v *Vault) {
		if count > 0 {
			v.codeCount = count
		}
	}
}

// NewVault creates a Vault backed by the given repository
func NewVault(repo Repository, opts ...VaultOption) *Vault {
	vault := &Vault{
		repo:       repo,
		bcryptCost: bcrypt.DefaultCost,
		codeCount:  DefaultCodeCount,
	}
	for _, opt := range opts {
		opt(vault)
	}
	return vault
}

// Generate creates a fresh set of n recovery codes for the user, replacing
// any previous set. The clear-text codes are returned exactly once; only
// hashes are stored. Pass n <= 0 for the configured default count.
func (v *Vault) Generate(ctx context.Context, userID uuid.UUID, n int) ([]string, error) {
	if n <= 0 {
		n = v.codeCount
	}

	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := randomCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	hashes := make([]string, 0, n)
	for _, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), v.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes = append(hashes, string(hash))
	}

	if err := v.repo.Replace(ctx, userID, hashes, time.Now().UTC()); err != nil {
		slog.Error("Failed to store backup codes", "userID", userID, "error", err)
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	slog.Info("Generated backup codes", "userID", userID, "count", n)
	return codes, nil
}

// Consume redeems a recovery code. A code that never existed returns
// INVALID_CODE; a code that was already redeemed returns CODE_ALREADY_USED.
// Redemption is atomic, so the same code submitted twice concurrently
// succeeds at most once.
func (v *Vault) Consume(ctx context.Context, userID uuid.UUID, code string) error {
	normalized := normalizeCode(code)
	if len(normalized) != CodeLength {
		return errors.New(errors.ErrCodeInvalidCode, "invalid backup code")
	}

	stored, err := v.repo.FindByUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load backup codes")
	}

	var match *BackupCode
	for i := range stored {
		if bcrypt.CompareHashAndPassword([]byte(stored[i].CodeHash), []byte(normalized)) == nil {
			match = &stored[i]
			break
		}
	}

	if match == nil {
		return errors.New(errors.ErrCodeInvalidCode, "invalid backup code")
	}
	if match.Consumed() {
		return errors.New(errors.ErrCodeCodeAlreadyUsed, "backup code already used")
	}

	consumed, err := v.repo.MarkConsumed(ctx, match.ID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to consume backup code")
	}
	if !consumed {
		// lost the race to a concurrent submission of the same code
		return errors.New(errors.ErrCodeCodeAlreadyUsed, "backup code already used")
	}

	slog.Info("Backup code consumed", "userID", userID)
	return nil
}

// Remaining returns how many unconsumed codes the user has left
func (v *Vault) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := v.repo.CountActive(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

// InvalidateAll removes every code for the user. Used by the reset path.
func (v *Vault) InvalidateAll(ctx context.Context, userID uuid.UUID) error {
	if err := v.repo.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate backup codes: %w", err)
	}
	slog.Info("Invalidated all backup codes", "userID", userID)
	return nil
}

func randomCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

func normalizeCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	normalized = strings.ReplaceAll(normalized, "-", "")
	return strings.ReplaceAll(normalized, " ", "")
}
