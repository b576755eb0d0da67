// Package enrollment orchestrates the second-factor lifecycle: TOTP and Duo
// enrollment, verification with lockout and device trust, recovery codes,
// and admin-issued enrollment directives.
package enrollment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vaultshare/mfa/pkg/attempt"
	"github.com/vaultshare/mfa/pkg/backupcode"
	"github.com/vaultshare/mfa/pkg/devicetrust"
	"github.com/vaultshare/mfa/pkg/duo"
	"github.com/vaultshare/mfa/pkg/errors"
	"github.com/vaultshare/mfa/pkg/notification"
	"github.com/vaultshare/mfa/pkg/totp"
)

const (
	// DefaultGracePeriod is how long after enrollment creation backup codes
	// are accepted for a user who has not confirmed setup yet
	DefaultGracePeriod = 48 * time.Hour
	// DefaultDirectiveTTL is how long an enrollment directive stays valid
	DefaultDirectiveTTL = 72 * time.Hour
)

// attempt ledger method labels
const (
	attemptMethodTOTP   = "totp"
	attemptMethodBackup = "backup"
	attemptMethodDuo    = "duo"
)

// VerifyParams describes one verification request
type VerifyParams struct {
	UserID         uuid.UUID
	Credential     string
	Fingerprint    string
	IPAddress      string
	RememberDevice bool
	Now            time.Time
}

// VerifyResult is the outcome of a verification request. Reason is set
// when OK is false; RetryAfter only accompanies RATE_LIMITED.
type VerifyResult struct {
	OK             bool
	Reason         errors.ErrorCode
	RetryAfter     time.Duration
	DeviceTrusted  bool
	UsedBackupCode bool
}

// Status is a snapshot of a user's second-factor standing
type Status struct {
	State                State
	Method               Method
	BackupCodesRemaining int
	Locked               bool
	RetryAfter           time.Duration
}

// CreateDirectiveParams describes a new enrollment directive
type CreateDirectiveParams struct {
	Email          string
	ForcedUsername string
	Force2FA       Method
	TTL            time.Duration
}

// Orchestrator drives the second-factor lifecycle over its collaborators
type Orchestrator struct {
	configs    ConfigRepository
	directives DirectiveRepository
	directory  UserDirectory
	engine     *totp.Engine
	vault      *backupcode.Vault
	ledger     *attempt.Ledger
	policy     *attempt.LockoutPolicy
	devices    *devicetrust.Service

	duoBridge       *duo.Bridge
	notifier        *notification.NotificationManager
	gracePeriod     time.Duration
	directiveTTL    time.Duration
	backupCodeCount int
	baseURL         string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithDuoBridge enables the Duo method
func WithDuoBridge(bridge *duo.Bridge) Option {
	return func(o *Orchestrator) {
		o.duoBridge = bridge
	}
}

// WithNotifier enables change notices
func WithNotifier(notifier *notification.NotificationManager) Option {
	return func(o *Orchestrator) {
		o.notifier = notifier
	}
}

// WithGracePeriod sets the pending-setup backup code grace window
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.gracePeriod = d
	}
}

// WithDirectiveTTL sets the default directive lifetime
func WithDirectiveTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.directiveTTL = d
		}
	}
}

// WithBackupCodeCount sets how many recovery codes each set contains
func WithBackupCodeCount(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.backupCodeCount = n
		}
	}
}

// WithBaseURL sets the public base URL used in directive invite links
func WithBaseURL(baseURL string) Option {
	return func(o *Orchestrator) {
		o.baseURL = baseURL
	}
}

// NewOrchestrator creates an Orchestrator over the given collaborators
func NewOrchestrator(
	configs ConfigRepository,
	directives DirectiveRepository,
	directory UserDirectory,
	engine *totp.Engine,
	vault *backupcode.Vault,
	ledger *attempt.Ledger,
	policy *attempt.LockoutPolicy,
	devices *devicetrust.Service,
	opts ...Option,
) *Orchestrator {
	orchestrator := &Orchestrator{
		configs:         configs,
		directives:      directives,
		directory:       directory,
		engine:          engine,
		vault:           vault,
		ledger:          ledger,
		policy:          policy,
		devices:         devices,
		gracePeriod:     DefaultGracePeriod,
		directiveTTL:    DefaultDirectiveTTL,
		backupCodeCount: backupcode.DefaultCodeCount,
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}

// Begin starts enrollment in the given method. TOTP produces a pending
// enrollment the user must confirm; Duo enrolls immediately since the hosted
// prompt owns its own setup. The returned payload is the only time the
// secret and backup codes exist in clear text.
func (o *Orchestrator) Begin(ctx context.Context, userID uuid.UUID, method Method) (PendingEnrollment, error) {
	user, err := o.directory.GetUser(ctx, userID)
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeNotFound, "user not found")
	}

	existing, err := o.configs.Get(ctx, userID)
	if err == nil && existing.State() == StateEnrolled {
		return PendingEnrollment{}, errors.New(errors.ErrCodeAlreadyEnrolled, "two-factor authentication is already enrolled")
	}
	if err != nil && !stderrors.Is(err, ErrConfigNotFound) {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	now := time.Now().UTC()
	switch method {
	case MethodTOTP:
		return o.beginTotp(ctx, user, now)
	case MethodDuo:
		return o.beginDuo(ctx, user, now)
	default:
		return PendingEnrollment{}, errors.InvalidInput("method", fmt.Sprintf("cannot enroll in %q", method))
	}
}

func (o *Orchestrator) beginTotp(ctx context.Context, user DirectoryUser, now time.Time) (PendingEnrollment, error) {
	secret, err := o.engine.GenerateSecret()
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate secret")
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}

	uri, err := o.engine.ProvisioningURI(account, secret)
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to build provisioning uri")
	}
	qr, err := o.engine.QRCode(account, secret)
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to render qr code")
	}

	codes, err := o.vault.Generate(ctx, user.ID, o.backupCodeCount)
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate backup codes")
	}

	err = o.configs.Upsert(ctx, TwoFactorConfig{
		UserID:    user.ID,
		Method:    MethodTOTP,
		Secret:    secret,
		Enabled:   true,
		Confirmed: false,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to store two-factor config")
	}

	slog.Info("Started totp enrollment", "userID", user.ID)
	return PendingEnrollment{
		Method:          MethodTOTP,
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodePNG:       qr,
		BackupCodes:     codes,
	}, nil
}

func (o *Orchestrator) beginDuo(ctx context.Context, user DirectoryUser, now time.Time) (PendingEnrollment, error) {
	if o.duoBridge == nil {
		return PendingEnrollment{}, errors.New(errors.ErrCodeDuoNotConfigured, "duo is not configured")
	}

	codes, err := o.vault.Generate(ctx, user.ID, o.backupCodeCount)
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate backup codes")
	}

	err = o.configs.Upsert(ctx, TwoFactorConfig{
		UserID:    user.ID,
		Method:    MethodDuo,
		Enabled:   true,
		Confirmed: true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to store two-factor config")
	}

	o.notify(ctx, user, notification.TwofaEnabledNotice, map[string]string{
		"Username": user.Username,
		"Method":   string(MethodDuo),
	})

	slog.Info("Enrolled user in duo", "userID", user.ID)
	return PendingEnrollment{
		Method:      MethodDuo,
		BackupCodes: codes,
	}, nil
}

// Confirm completes a pending TOTP setup with the user's first passcode.
// Failed confirmations count toward the lockout like any other failure.
func (o *Orchestrator) Confirm(ctx context.Context, userID uuid.UUID, code string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	decision, err := o.policy.Evaluate(ctx, userID, now)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to evaluate lockout")
	}
	if decision.Locked {
		return errors.RateLimited(decision.RetryAfter.String())
	}

	config, err := o.configs.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrConfigNotFound) {
			return errors.New(errors.ErrCodeNotEnrolled, "no enrollment to confirm")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	switch config.State() {
	case StateEnrolled:
		return errors.New(errors.ErrCodeAlreadyEnrolled, "enrollment is already confirmed")
	case StatePendingSetup:
		// proceed
	default:
		return errors.New(errors.ErrCodeNotEnrolled, "no enrollment to confirm")
	}

	if config.Method != MethodTOTP {
		return errors.InvalidInput("method", "only totp enrollment requires confirmation")
	}

	if !o.engine.Verify(config.Secret, code, now) {
		o.record(ctx, userID, attemptMethodTOTP, false, "", now)
		return errors.New(errors.ErrCodeInvalidCode, "invalid passcode")
	}

	o.record(ctx, userID, attemptMethodTOTP, true, "", now)

	config.Confirmed = true
	config.UpdatedAt = now
	if err := o.configs.Upsert(ctx, config); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to store two-factor config")
	}

	if user, err := o.directory.GetUser(ctx, userID); err == nil {
		o.notify(ctx, user, notification.TwofaEnabledNotice, map[string]string{
			"Username": user.Username,
			"Method":   string(MethodTOTP),
		})
	}

	slog.Info("Confirmed totp enrollment", "userID", userID)
	return nil
}

// Verify checks a credential against the user's enrollment. Order matters:
// an active lockout rejects before any cryptographic work and is not
// recorded as a new failure; a trusted device bypasses the challenge but
// never the lockout.
func (o *Orchestrator) Verify(ctx context.Context, params VerifyParams) (VerifyResult, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	decision, err := o.policy.Evaluate(ctx, params.UserID, now)
	if err != nil {
		return VerifyResult{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to evaluate lockout")
	}
	if decision.Locked {
		return VerifyResult{Reason: errors.ErrCodeRateLimited, RetryAfter: decision.RetryAfter}, nil
	}

	if params.Fingerprint != "" {
		trusted, err := o.devices.IsTrusted(ctx, params.UserID, params.Fingerprint, now)
		if err != nil {
			return VerifyResult{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to check device trust")
		}
		if trusted {
			slog.Info("Verification satisfied by trusted device", "userID", params.UserID)
			return VerifyResult{OK: true, DeviceTrusted: true}, nil
		}
	}

	config, err := o.configs.Get(ctx, params.UserID)
	if err != nil {
		if stderrors.Is(err, ErrConfigNotFound) {
			return VerifyResult{Reason: errors.ErrCodeNotEnrolled}, nil
		}
		return VerifyResult{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	switch config.State() {
	case StateEnrolled:
		// proceed
	case StatePendingSetup:
		// inside the grace window a backup code still works, so a user who
		// lost the QR mid-setup is not locked out of finishing enrollment
		if o.gracePeriod > 0 && now.Sub(config.CreatedAt) <= o.gracePeriod {
			return o.verifyBackupCode(ctx, params, now, attemptMethodBackup)
		}
		return VerifyResult{Reason: errors.ErrCodeSetupNotConfirmed}, nil
	default:
		return VerifyResult{Reason: errors.ErrCodeNotEnrolled}, nil
	}

	if config.Method == MethodTOTP && o.engine.Verify(config.Secret, params.Credential, now) {
		o.record(ctx, params.UserID, attemptMethodTOTP, true, params.IPAddress, now)
		return o.finishSuccess(ctx, params, now, false)
	}

	// fall through to backup codes for both methods; a failed six digit
	// passcode is still logged as a passcode attempt, not a backup code
	failureMethod := attemptMethodBackup
	if config.Method == MethodTOTP && looksLikePasscode(params.Credential) {
		failureMethod = attemptMethodTOTP
	}
	return o.verifyBackupCode(ctx, params, now, failureMethod)
}

func (o *Orchestrator) verifyBackupCode(ctx context.Context, params VerifyParams, now time.Time, failureMethod string) (VerifyResult, error) {
	err := o.vault.Consume(ctx, params.UserID, params.Credential)
	if err == nil {
		o.record(ctx, params.UserID, attemptMethodBackup, true, params.IPAddress, now)
		return o.finishSuccess(ctx, params, now, true)
	}

	reason := errors.GetCode(err)
	if reason != errors.ErrCodeInvalidCode && reason != errors.ErrCodeCodeAlreadyUsed {
		return VerifyResult{}, err
	}

	o.record(ctx, params.UserID, failureMethod, false, params.IPAddress, now)
	return VerifyResult{Reason: reason}, nil
}

// looksLikePasscode reports whether the credential has the shape of a six
// digit authenticator passcode. Backup codes are longer, so the two never
// overlap.
func looksLikePasscode(credential string) bool {
	if len(credential) != 6 {
		return false
	}
	for _, r := range credential {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (o *Orchestrator) finishSuccess(ctx context.Context, params VerifyParams, now time.Time, usedBackup bool) (VerifyResult, error) {
	result := VerifyResult{OK: true, UsedBackupCode: usedBackup}

	if params.RememberDevice && params.Fingerprint != "" {
		if _, err := o.devices.Issue(ctx, params.UserID, params.Fingerprint, now); err != nil {
			slog.Warn("Failed to issue device trust", "userID", params.UserID, "error", err)
		} else {
			result.DeviceTrusted = true
		}
	}
	return result, nil
}

// VerifyDuoCallback settles a verification that went through the hosted
// prompt. The callback gets the same lockout and ledger treatment as a
// local code check.
func (o *Orchestrator) VerifyDuoCallback(ctx context.Context, state, assertion string, params VerifyParams) (VerifyResult, error) {
	if o.duoBridge == nil {
		return VerifyResult{}, errors.New(errors.ErrCodeDuoNotConfigured, "duo is not configured")
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	decision, err := o.policy.Evaluate(ctx, params.UserID, now)
	if err != nil {
		return VerifyResult{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to evaluate lockout")
	}
	if decision.Locked {
		return VerifyResult{Reason: errors.ErrCodeRateLimited, RetryAfter: decision.RetryAfter}, nil
	}

	config, err := o.configs.Get(ctx, params.UserID)
	if err != nil || config.State() != StateEnrolled || config.Method != MethodDuo {
		return VerifyResult{Reason: errors.ErrCodeNotEnrolled}, nil
	}

	username, err := o.duoBridge.ValidateCallback(ctx, state, assertion)
	if err != nil {
		o.record(ctx, params.UserID, attemptMethodDuo, false, params.IPAddress, now)
		return VerifyResult{Reason: errors.GetCode(err)}, nil
	}

	if user, err := o.directory.GetUser(ctx, params.UserID); err == nil {
		if username != "" && user.Username != username {
			o.record(ctx, params.UserID, attemptMethodDuo, false, params.IPAddress, now)
			return VerifyResult{Reason: errors.ErrCodeStateMismatch}, nil
		}
	}

	o.record(ctx, params.UserID, attemptMethodDuo, true, params.IPAddress, now)
	return o.finishSuccess(ctx, params, now, false)
}

// BeginDuoRedirect prepares the hosted-prompt redirect for the user
func (o *Orchestrator) BeginDuoRedirect(ctx context.Context, userID uuid.UUID) (duo.RedirectSpec, error) {
	if o.duoBridge == nil {
		return duo.RedirectSpec{}, errors.New(errors.ErrCodeDuoNotConfigured, "duo is not configured")
	}

	user, err := o.directory.GetUser(ctx, userID)
	if err != nil {
		return duo.RedirectSpec{}, errors.Wrap(err, errors.ErrCodeNotFound, "user not found")
	}
	return o.duoBridge.BuildRedirectRequest(ctx, user.Username)
}

// Disable turns enforcement off without forgetting the enrollment. History
// and backup codes survive; only Reset invalidates wholesale.
func (o *Orchestrator) Disable(ctx context.Context, userID uuid.UUID) error {
	config, err := o.configs.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrConfigNotFound) {
			return errors.New(errors.ErrCodeNotEnrolled, "two-factor authentication is not enrolled")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	if !config.Enabled {
		return nil
	}

	config.Enabled = false
	config.UpdatedAt = time.Now().UTC()
	if err := o.configs.Upsert(ctx, config); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to store two-factor config")
	}

	if user, err := o.directory.GetUser(ctx, userID); err == nil {
		o.notify(ctx, user, notification.TwofaDisabledNotice, map[string]string{
			"Username": user.Username,
		})
	}

	slog.Info("Disabled two-factor authentication", "userID", userID)
	return nil
}

// Enable re-enables a previously confirmed, disabled enrollment
func (o *Orchestrator) Enable(ctx context.Context, userID uuid.UUID) error {
	config, err := o.configs.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrConfigNotFound) {
			return errors.New(errors.ErrCodeNotEnrolled, "two-factor authentication is not enrolled")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	if !config.Confirmed {
		return errors.New(errors.ErrCodeSetupNotConfirmed, "enrollment was never confirmed")
	}
	if config.Enabled {
		return nil
	}

	config.Enabled = true
	config.UpdatedAt = time.Now().UTC()
	if err := o.configs.Upsert(ctx, config); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to store two-factor config")
	}

	if user, err := o.directory.GetUser(ctx, userID); err == nil {
		o.notify(ctx, user, notification.TwofaEnabledNotice, map[string]string{
			"Username": user.Username,
			"Method":   string(config.Method),
		})
	}

	slog.Info("Re-enabled two-factor authentication", "userID", userID)
	return nil
}

// Reset discards the current enrollment and starts a fresh one in the same
// method. This is the only operation that invalidates the secret and every
// outstanding backup code wholesale.
func (o *Orchestrator) Reset(ctx context.Context, userID uuid.UUID) (PendingEnrollment, error) {
	config, err := o.configs.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrConfigNotFound) {
			return PendingEnrollment{}, errors.New(errors.ErrCodeNotEnrolled, "two-factor authentication is not enrolled")
		}
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	user, err := o.directory.GetUser(ctx, userID)
	if err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeNotFound, "user not found")
	}

	if err := o.vault.InvalidateAll(ctx, userID); err != nil {
		return PendingEnrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to invalidate backup codes")
	}

	now := time.Now().UTC()
	var pending PendingEnrollment
	switch config.Method {
	case MethodDuo:
		pending, err = o.beginDuo(ctx, user, now)
	default:
		pending, err = o.beginTotp(ctx, user, now)
	}
	if err != nil {
		return PendingEnrollment{}, err
	}

	o.notify(ctx, user, notification.TwofaResetNotice, map[string]string{
		"Username": user.Username,
	})

	slog.Info("Reset two-factor authentication", "userID", userID, "method", config.Method)
	return pending, nil
}

// RegenerateBackupCodes issues a fresh recovery code set, invalidating the
// previous one
func (o *Orchestrator) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	config, err := o.configs.Get(ctx, userID)
	if err != nil || config.State() == StateUnenrolled {
		return nil, errors.New(errors.ErrCodeNotEnrolled, "two-factor authentication is not enrolled")
	}

	codes, err := o.vault.Generate(ctx, userID, o.backupCodeCount)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate backup codes")
	}

	if user, err := o.directory.GetUser(ctx, userID); err == nil {
		o.notify(ctx, user, notification.BackupCodesGeneratedNotice, map[string]string{
			"Username": user.Username,
		})
	}
	return codes, nil
}

// GetStatus returns the user's current second-factor standing
func (o *Orchestrator) GetStatus(ctx context.Context, userID uuid.UUID, now time.Time) (Status, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	status := Status{State: StateUnenrolled, Method: MethodNone}

	config, err := o.configs.Get(ctx, userID)
	if err == nil {
		status.State = config.State()
		status.Method = config.Method
	} else if !stderrors.Is(err, ErrConfigNotFound) {
		return Status{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	remaining, err := o.vault.Remaining(ctx, userID)
	if err != nil {
		return Status{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to count backup codes")
	}
	status.BackupCodesRemaining = remaining

	decision, err := o.policy.Evaluate(ctx, userID, now)
	if err != nil {
		return Status{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to evaluate lockout")
	}
	status.Locked = decision.Locked
	status.RetryAfter = decision.RetryAfter
	return status, nil
}

// IsLockedOut reports the user's lockout standing at the given instant
func (o *Orchestrator) IsLockedOut(ctx context.Context, userID uuid.UUID, now time.Time) (attempt.Decision, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return o.policy.Evaluate(ctx, userID, now)
}

// ClearLockout lifts an active lockout immediately
func (o *Orchestrator) ClearLockout(ctx context.Context, userID uuid.UUID) error {
	return o.policy.ClearLockout(ctx, userID)
}

// DuoHealth probes the Duo deployment
func (o *Orchestrator) DuoHealth(ctx context.Context) (duo.HealthSummary, error) {
	if o.duoBridge == nil {
		return duo.HealthSummary{}, errors.New(errors.ErrCodeDuoNotConfigured, "duo is not configured")
	}
	return o.duoBridge.HealthCheck(ctx)
}

// RequireSecondFactor is the mandatory-2FA gate. A user whose directory
// record requires a second factor must be Enrolled before login completes.
func (o *Orchestrator) RequireSecondFactor(ctx context.Context, userID uuid.UUID) error {
	user, err := o.directory.GetUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNotFound, "user not found")
	}
	if !user.RequireTwoFactor {
		return nil
	}

	config, err := o.configs.Get(ctx, userID)
	if err == nil && config.State() == StateEnrolled {
		return nil
	}
	if err != nil && !stderrors.Is(err, ErrConfigNotFound) {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load two-factor config")
	}

	return errors.New(errors.ErrCodeEnrollmentRequired, "two-factor enrollment is required")
}

// CreateDirective issues an enrollment directive and emails the invite
func (o *Orchestrator) CreateDirective(ctx context.Context, params CreateDirectiveParams) (Directive, error) {
	if params.Email == "" {
		return Directive{}, errors.InvalidInput("email", "cannot be empty")
	}
	if params.Force2FA != "" && params.Force2FA != MethodNone {
		if _, err := ParseMethod(string(params.Force2FA)); err != nil {
			return Directive{}, errors.InvalidInput("force_2fa", err.Error())
		}
	}

	token, err := generateToken()
	if err != nil {
		return Directive{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate token")
	}

	ttl := params.TTL
	if ttl <= 0 {
		ttl = o.directiveTTL
	}

	now := time.Now().UTC()
	directive := Directive{
		ID:             uuid.New(),
		Token:          token,
		Email:          params.Email,
		ForcedUsername: params.ForcedUsername,
		Force2FA:       params.Force2FA,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	if directive.Force2FA == "" {
		directive.Force2FA = MethodNone
	}

	if err := o.directives.Create(ctx, directive); err != nil {
		return Directive{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to store directive")
	}

	if o.notifier != nil {
		err := o.notifier.Send(notification.EnrollmentInviteNotice, notification.EmailSystem,
			notification.NotificationData{
				To: directive.Email,
				Data: map[string]string{
					"Link":      fmt.Sprintf("%s/enroll?token=%s", o.baseURL, directive.Token),
					"ExpiresAt": directive.ExpiresAt.Format(time.RFC1123),
				},
			})
		if err != nil {
			slog.Warn("Failed to send enrollment invite", "email", directive.Email, "error", err)
		}
	}

	slog.Info("Created enrollment directive", "email", directive.Email, "force2fa", directive.Force2FA)
	return directive, nil
}

// RevokeDirective marks the directive for the token revoked
func (o *Orchestrator) RevokeDirective(ctx context.Context, token string) error {
	directive, err := o.directives.GetByToken(ctx, token)
	if err != nil {
		if stderrors.Is(err, ErrDirectiveNotFound) {
			return errors.NotFound("directive", token)
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load directive")
	}
	if err := o.directives.Revoke(ctx, directive.ID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to revoke directive")
	}
	slog.Info("Revoked enrollment directive", "email", directive.Email)
	return nil
}

// ConsumeDirective redeems a directive for the acting user. Used, revoked,
// and expired are distinct terminal outcomes; when both revocation and
// expiry apply, whichever happened first wins. A force_2fa directive leaves
// the user in PendingSetup.
func (o *Orchestrator) ConsumeDirective(ctx context.Context, token string, userID uuid.UUID, now time.Time) (Directive, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	directive, err := o.directives.GetByToken(ctx, token)
	if err != nil {
		if stderrors.Is(err, ErrDirectiveNotFound) {
			return Directive{}, errors.NotFound("directive", token)
		}
		return Directive{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to load directive")
	}

	expired := now.After(directive.ExpiresAt)
	switch {
	case directive.UsedAt != nil:
		return Directive{}, errors.New(errors.ErrCodeDirectiveAlreadyUsed, "directive was already used")
	case directive.RevokedAt != nil && expired:
		if directive.RevokedAt.Before(directive.ExpiresAt) {
			return Directive{}, errors.New(errors.ErrCodeDirectiveRevoked, "directive was revoked")
		}
		return Directive{}, errors.New(errors.ErrCodeDirectiveExpired, "directive has expired")
	case directive.RevokedAt != nil:
		return Directive{}, errors.New(errors.ErrCodeDirectiveRevoked, "directive was revoked")
	case expired:
		return Directive{}, errors.New(errors.ErrCodeDirectiveExpired, "directive has expired")
	}

	used, err := o.directives.MarkUsed(ctx, directive.ID, now)
	if err != nil {
		return Directive{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to consume directive")
	}
	if !used {
		return Directive{}, errors.New(errors.ErrCodeDirectiveAlreadyUsed, "directive was already used")
	}

	if directive.Force2FA != MethodNone && directive.Force2FA != "" {
		existing, err := o.configs.Get(ctx, userID)
		if stderrors.Is(err, ErrConfigNotFound) || (err == nil && existing.State() != StateEnrolled) {
			err := o.configs.Upsert(ctx, TwoFactorConfig{
				UserID:    userID,
				Method:    directive.Force2FA,
				Enabled:   true,
				Confirmed: false,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return Directive{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to store two-factor config")
			}
		}
	}

	usedAt := now
	directive.UsedAt = &usedAt
	slog.Info("Consumed enrollment directive", "email", directive.Email, "userID", userID)
	return directive, nil
}

// ListDirectives returns every directive issued for an email address
func (o *Orchestrator) ListDirectives(ctx context.Context, email string) ([]Directive, error) {
	directives, err := o.directives.ListByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list directives")
	}
	return directives, nil
}

func (o *Orchestrator) record(ctx context.Context, userID uuid.UUID, method string, success bool, ip string, at time.Time) {
	err := o.ledger.Record(ctx, attempt.RecordParams{
		UserID:    userID,
		Method:    method,
		Success:   success,
		IPAddress: ip,
		At:        at,
	})
	if err != nil {
		slog.Error("Failed to record attempt", "userID", userID, "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, user DirectoryUser, noticeType notification.NoticeType, data map[string]string) {
	if o.notifier == nil || user.Email == "" {
		return
	}
	err := o.notifier.Send(noticeType, notification.EmailSystem, notification.NotificationData{
		To:   user.Email,
		Data: data,
	})
	if err != nil {
		slog.Warn("Failed to send notice", "type", noticeType, "userID", user.ID, "error", err)
	}
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
