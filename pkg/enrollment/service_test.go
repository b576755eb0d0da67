package enrollment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultshare/mfa/pkg/attempt"
	"github.com/vaultshare/mfa/pkg/backupcode"
	"github.com/vaultshare/mfa/pkg/devicetrust"
	"github.com/vaultshare/mfa/pkg/enrollment"
	"github.com/vaultshare/mfa/pkg/errors"
	"github.com/vaultshare/mfa/pkg/totp"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	orchestrator *enrollment.Orchestrator
	engine       *totp.Engine
	directory    *enrollment.StaticUserDirectory
	attempts     *attempt.InMemoryRepository
	user         enrollment.DirectoryUser
}

func newFixture(t *testing.T, opts ...enrollment.Option) *fixture {
	t.Helper()

	user := enrollment.DirectoryUser{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
	}
	directory := enrollment.NewStaticUserDirectory(user)

	engine := totp.NewEngine("VaultShare")
	vault := backupcode.NewVault(backupcode.NewInMemoryRepository(),
		backupcode.WithBcryptCost(bcrypt.MinCost))
	attempts := attempt.NewInMemoryRepository()

	orchestrator := enrollment.NewOrchestrator(
		enrollment.NewInMemoryConfigRepository(),
		enrollment.NewInMemoryDirectiveRepository(),
		directory,
		engine,
		vault,
		attempt.NewLedger(attempts),
		attempt.NewLockoutPolicy(attempts),
		devicetrust.NewService(devicetrust.NewInMemoryRepository()),
		opts...,
	)

	return &fixture{
		orchestrator: orchestrator,
		engine:       engine,
		directory:    directory,
		attempts:     attempts,
		user:         user,
	}
}

// enrollTotp runs a full begin/confirm cycle and returns the pending payload
func (f *fixture) enrollTotp(t *testing.T, now time.Time) enrollment.PendingEnrollment {
	t.Helper()

	pending, err := f.orchestrator.Begin(context.Background(), f.user.ID, enrollment.MethodTOTP)
	require.NoError(t, err)

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(context.Background(), f.user.ID, code, now))
	return pending
}

func TestBeginTotpProducesPendingEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.orchestrator.Begin(ctx, f.user.ID, enrollment.MethodTOTP)
	require.NoError(t, err)

	assert.Equal(t, enrollment.MethodTOTP, pending.Method)
	assert.NotEmpty(t, pending.Secret)
	assert.Contains(t, pending.ProvisioningURI, "otpauth://totp/")
	assert.NotEmpty(t, pending.QRCodePNG)
	assert.Len(t, pending.BackupCodes, backupcode.DefaultCodeCount)

	status, err := f.orchestrator.GetStatus(ctx, f.user.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatePendingSetup, status.State)
	assert.Equal(t, enrollment.MethodTOTP, status.Method)
}

func TestConfirmCompletesEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.enrollTotp(t, now)

	status, err := f.orchestrator.GetStatus(ctx, f.user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StateEnrolled, status.State)
}

func TestConfirmWrongCodeCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := f.orchestrator.Begin(ctx, f.user.ID, enrollment.MethodTOTP)
	require.NoError(t, err)

	err = f.orchestrator.Confirm(ctx, f.user.ID, "000000", now)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidCode, errors.GetCode(err))

	decision, err := f.orchestrator.IsLockedOut(ctx, f.user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.Failures)
}

func TestBeginRejectsEnrolledUser(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	f.enrollTotp(t, now)

	_, err := f.orchestrator.Begin(context.Background(), f.user.ID, enrollment.MethodTOTP)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlreadyEnrolled, errors.GetCode(err))
}

func TestVerifyTotpCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)

	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.UsedBackupCode)

	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: "999999", Now: now,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeInvalidCode, result.Reason)
}

func TestVerifyUnenrolledUser(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator.Verify(context.Background(), enrollment.VerifyParams{
		UserID: f.user.ID, Credential: "123456", Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeNotEnrolled, result.Reason)
}

func TestBackupCodeFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	code := pending.BackupCodes[0]
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.UsedBackupCode)

	// a redeemed code is distinguishable from one that never existed
	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeCodeAlreadyUsed, result.Reason)

	status, err := f.orchestrator.GetStatus(ctx, f.user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, backupcode.DefaultCodeCount-1, status.BackupCodesRemaining)
}

func TestFailedPasscodeRecordedAsTotp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: "000000", Now: now,
	})
	require.NoError(t, err)
	require.False(t, result.OK)

	failures, err := f.attempts.FindFailuresSince(ctx, f.user.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "totp", failures[0].Method)

	// a wrong backup code is still a backup failure
	badCode := pending.BackupCodes[0][:9] + "?"
	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: badCode, Now: now.Add(time.Second),
	})
	require.NoError(t, err)
	require.False(t, result.OK)

	failures, err = f.attempts.FindFailuresSince(ctx, f.user.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "backup", failures[1].Method)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	for i := 0; i < attempt.DefaultMaxAttempts; i++ {
		result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
			UserID: f.user.ID, Credential: "999999", Now: now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		assert.False(t, result.OK)
	}

	lockedAt := now.Add(10 * time.Second)
	code, err := f.engine.GenerateCode(pending.Secret, lockedAt)
	require.NoError(t, err)

	// even a valid code is rejected while locked, and the rejection is not
	// recorded as a new failure
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: lockedAt,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeRateLimited, result.Reason)
	assert.Greater(t, result.RetryAfter, time.Duration(0))

	decision, err := f.orchestrator.IsLockedOut(ctx, f.user.ID, lockedAt)
	require.NoError(t, err)
	assert.Equal(t, attempt.DefaultMaxAttempts, decision.Failures)

	// the lock expires naturally once the duration has passed
	later := now.Add(attempt.DefaultLockoutDuration + time.Minute)
	code, err = f.engine.GenerateCode(pending.Secret, later)
	require.NoError(t, err)

	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: later,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestClearLockoutTakesEffectImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	for i := 0; i < attempt.DefaultMaxAttempts; i++ {
		_, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
			UserID: f.user.ID, Credential: "999999", Now: now,
		})
		require.NoError(t, err)
	}

	decision, err := f.orchestrator.IsLockedOut(ctx, f.user.ID, now)
	require.NoError(t, err)
	require.True(t, decision.Locked)

	require.NoError(t, f.orchestrator.ClearLockout(ctx, f.user.ID))

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestDeviceTrustBypassesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)

	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID:         f.user.ID,
		Credential:     code,
		Fingerprint:    "device-a",
		RememberDevice: true,
		Now:            now,
	})
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.True(t, result.DeviceTrusted)

	// the trusted device skips the challenge without touching the ledger
	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: "garbage", Fingerprint: "device-a", Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.DeviceTrusted)

	decision, err := f.orchestrator.IsLockedOut(ctx, f.user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 0, decision.Failures)
}

func TestDeviceTrustNeverBypassesLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Fingerprint: "device-a",
		RememberDevice: true, Now: now,
	})
	require.NoError(t, err)
	require.True(t, result.OK)

	for i := 0; i < attempt.DefaultMaxAttempts; i++ {
		_, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
			UserID: f.user.ID, Credential: "999999", Now: now,
		})
		require.NoError(t, err)
	}

	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: "garbage", Fingerprint: "device-a", Now: now,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeRateLimited, result.Reason)
}

func TestGracePeriodAcceptsBackupCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pending, err := f.orchestrator.Begin(ctx, f.user.ID, enrollment.MethodTOTP)
	require.NoError(t, err)

	// setup is pending, but inside the grace window a backup code works
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: pending.BackupCodes[0], Now: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.UsedBackupCode)

	// after the grace window the pending setup blocks verification
	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID:     f.user.ID,
		Credential: pending.BackupCodes[1],
		Now:        now.Add(enrollment.DefaultGracePeriod + time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeSetupNotConfirmed, result.Reason)
}

func TestResetInvalidatesSecretAndCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := f.enrollTotp(t, now)

	fresh, err := f.orchestrator.Reset(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.Secret, fresh.Secret)

	status, err := f.orchestrator.GetStatus(ctx, f.user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatePendingSetup, status.State)

	// old backup codes are gone wholesale; the fresh set works
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: old.BackupCodes[0], Now: now,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeInvalidCode, result.Reason)

	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: fresh.BackupCodes[0], Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestDisableAndEnable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := f.enrollTotp(t, now)

	require.NoError(t, f.orchestrator.Disable(ctx, f.user.ID))

	status, err := f.orchestrator.GetStatus(ctx, f.user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StateDisabled, status.State)

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)
	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, errors.ErrCodeNotEnrolled, result.Reason)

	require.NoError(t, f.orchestrator.Enable(ctx, f.user.ID))

	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: code, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestRegenerateBackupCodesReplacesSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := f.enrollTotp(t, now)

	fresh, err := f.orchestrator.RegenerateBackupCodes(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, fresh, backupcode.DefaultCodeCount)

	result, err := f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: old.BackupCodes[0], Now: now,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)

	result, err = f.orchestrator.Verify(ctx, enrollment.VerifyParams{
		UserID: f.user.ID, Credential: fresh[0], Now: now,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestRequireSecondFactor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mandated := enrollment.DirectoryUser{
		ID:               uuid.New(),
		Username:         "bob",
		Email:            "bob@example.com",
		RequireTwoFactor: true,
	}
	f.directory.AddUser(mandated)

	// optional user passes regardless of enrollment
	require.NoError(t, f.orchestrator.RequireSecondFactor(ctx, f.user.ID))

	err := f.orchestrator.RequireSecondFactor(ctx, mandated.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeEnrollmentRequired, errors.GetCode(err))

	now := time.Now().UTC()
	pending, err := f.orchestrator.Begin(ctx, mandated.ID, enrollment.MethodTOTP)
	require.NoError(t, err)

	// pending setup is not enough
	err = f.orchestrator.RequireSecondFactor(ctx, mandated.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeEnrollmentRequired, errors.GetCode(err))

	code, err := f.engine.GenerateCode(pending.Secret, now)
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, mandated.ID, code, now))

	require.NoError(t, f.orchestrator.RequireSecondFactor(ctx, mandated.ID))
}

func TestDirectiveLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	directive, err := f.orchestrator.CreateDirective(ctx, enrollment.CreateDirectiveParams{
		Email:    "carol@example.com",
		Force2FA: enrollment.MethodTOTP,
	})
	require.NoError(t, err)
	require.NotEmpty(t, directive.Token)
	assert.True(t, directive.ExpiresAt.After(now))

	newUser := enrollment.DirectoryUser{ID: uuid.New(), Username: "carol", Email: "carol@example.com"}
	f.directory.AddUser(newUser)

	consumed, err := f.orchestrator.ConsumeDirective(ctx, directive.Token, newUser.ID, now)
	require.NoError(t, err)
	require.NotNil(t, consumed.UsedAt)

	// force_2fa leaves the user pending, not enrolled
	status, err := f.orchestrator.GetStatus(ctx, newUser.ID, now)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatePendingSetup, status.State)
	assert.Equal(t, enrollment.MethodTOTP, status.Method)

	_, err = f.orchestrator.ConsumeDirective(ctx, directive.Token, newUser.ID, now)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDirectiveAlreadyUsed, errors.GetCode(err))
}

func TestDirectiveRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	directive, err := f.orchestrator.CreateDirective(ctx, enrollment.CreateDirectiveParams{
		Email: "dave@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, f.orchestrator.RevokeDirective(ctx, directive.Token))

	_, err = f.orchestrator.ConsumeDirective(ctx, directive.Token, uuid.New(), now)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDirectiveRevoked, errors.GetCode(err))
}

func TestDirectiveExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	directive, err := f.orchestrator.CreateDirective(ctx, enrollment.CreateDirectiveParams{
		Email: "erin@example.com",
		TTL:   time.Minute,
	})
	require.NoError(t, err)

	_, err = f.orchestrator.ConsumeDirective(ctx, directive.Token, uuid.New(), now.Add(2*time.Minute))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDirectiveExpired, errors.GetCode(err))
}

func TestDirectiveRevokedBeforeExpiryWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	directive, err := f.orchestrator.CreateDirective(ctx, enrollment.CreateDirectiveParams{
		Email: "frank@example.com",
		TTL:   time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.RevokeDirective(ctx, directive.Token))

	// revocation happened before expiry, so it wins even once both apply
	_, err = f.orchestrator.ConsumeDirective(ctx, directive.Token, uuid.New(), now.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDirectiveRevoked, errors.GetCode(err))
}

func TestListDirectivesByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.orchestrator.CreateDirective(ctx, enrollment.CreateDirectiveParams{
			Email: "grace@example.com",
		})
		require.NoError(t, err)
	}

	directives, err := f.orchestrator.ListDirectives(ctx, "GRACE@example.com")
	require.NoError(t, err)
	assert.Len(t, directives, 2)
}
