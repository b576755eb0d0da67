package config

import (
	"time"

	"github.com/sosodev/duration"
)

// TwoFactorConfig contains second-factor policy settings.
// Fields have no env tags - populate manually or use NewTwoFactorConfigFromEnv()
// for standard env var names.
type TwoFactorConfig struct {
	// Issuer is the issuer name embedded in provisioning URIs
	Issuer string

	// MaxFailedAttempts is the number of failed verifications inside the
	// detection window that triggers a lockout
	MaxFailedAttempts int

	// LockoutWindow is the sliding window over which failures are counted
	// (ISO 8601 format, e.g., "PT15M")
	LockoutWindow string

	// LockoutDuration is how long a lockout lasts from the most recent
	// qualifying failure (ISO 8601 format, e.g., "PT15M")
	LockoutDuration string

	// DeviceTrustDays is how long a trusted-device token lasts
	// (ISO 8601 format, e.g., "P30D")
	DeviceTrustDays string

	// GracePeriodHours is how long after enrollment creation backup codes
	// are accepted for a user who has not yet confirmed setup
	GracePeriodHours int

	// BackupCodeCount is the number of recovery codes issued per set
	BackupCodeCount int
}

// DefaultTwoFactorConfig returns a TwoFactorConfig with sensible defaults
func DefaultTwoFactorConfig() TwoFactorConfig {
	return TwoFactorConfig{
		Issuer:            "VaultShare",
		MaxFailedAttempts: 5,
		LockoutWindow:     "PT15M",
		LockoutDuration:   "PT15M",
		DeviceTrustDays:   "P30D",
		GracePeriodHours:  48,
		BackupCodeCount:   10,
	}
}

// NewTwoFactorConfigFromEnv loads TwoFactorConfig from standard environment variables.
//
// Environment variables:
//   - TWOFA_ISSUER: Issuer name in provisioning URIs (default: "VaultShare")
//   - TWOFA_MAX_FAILED_ATTEMPTS: Failures before lockout (default: 5)
//   - TWOFA_LOCKOUT_WINDOW: Failure detection window in ISO 8601 format (default: "PT15M")
//   - TWOFA_LOCKOUT_DURATION: Lockout duration in ISO 8601 format (default: "PT15M")
//   - TWOFA_DEVICE_TRUST_DAYS: Trusted-device lifetime in ISO 8601 format (default: "P30D")
//   - TWOFA_GRACE_PERIOD_HOURS: Backup-code grace window after enrollment (default: 48)
//   - TWOFA_BACKUP_CODE_COUNT: Recovery codes per set (default: 10)
func NewTwoFactorConfigFromEnv() TwoFactorConfig {
	return TwoFactorConfig{
		Issuer:            GetEnvOrDefault("TWOFA_ISSUER", "VaultShare"),
		MaxFailedAttempts: GetEnvInt("TWOFA_MAX_FAILED_ATTEMPTS", 5),
		LockoutWindow:     GetEnvOrDefault("TWOFA_LOCKOUT_WINDOW", "PT15M"),
		LockoutDuration:   GetEnvOrDefault("TWOFA_LOCKOUT_DURATION", "PT15M"),
		DeviceTrustDays:   GetEnvOrDefault("TWOFA_DEVICE_TRUST_DAYS", "P30D"),
		GracePeriodHours:  GetEnvInt("TWOFA_GRACE_PERIOD_HOURS", 48),
		BackupCodeCount:   GetEnvInt("TWOFA_BACKUP_CODE_COUNT", 10),
	}
}

// ParseLockoutWindow parses the LockoutWindow field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT15M") and Go duration format (e.g., "15m").
func (c *TwoFactorConfig) ParseLockoutWindow() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.LockoutWindow)
}

// ParseLockoutDuration parses the LockoutDuration field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT15M") and Go duration format (e.g., "15m").
func (c *TwoFactorConfig) ParseLockoutDuration() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.LockoutDuration)
}

// ParseDeviceTrust parses the DeviceTrustDays field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "P30D") and Go duration format (e.g., "720h").
func (c *TwoFactorConfig) ParseDeviceTrust() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.DeviceTrustDays)
}

// GracePeriod returns the GracePeriodHours field as a time.Duration.
func (c *TwoFactorConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodHours) * time.Hour
}

// parseISO8601OrGoDuration tries to parse as ISO 8601 first, then as Go duration
func parseISO8601OrGoDuration(s string) (time.Duration, error) {
	isoDuration, err := duration.Parse(s)
	if err == nil {
		return isoDuration.ToTimeDuration(), nil
	}

	return time.ParseDuration(s)
}
