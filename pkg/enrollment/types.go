package enrollment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Method is the second-factor method a user is enrolled in
type Method string

const (
	MethodNone Method = "none"
	MethodTOTP Method = "totp"
	MethodDuo  Method = "duo"
)

// ParseMethod validates a method string
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodNone, MethodTOTP, MethodDuo:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown 2fa method: %s", s)
	}
}

// State is the derived enrollment state. It is never stored; it falls out
// of the config row (or its absence).
type State string

const (
	StateUnenrolled   State = "unenrolled"
	StatePendingSetup State = "pending_setup"
	StateEnrolled     State = "enrolled"
	StateDisabled     State = "disabled"
)

// TwoFactorConfig is a user's second-factor configuration. One row per user.
type TwoFactorConfig struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Method    Method
	Secret    string // present only for totp
	Enabled   bool
	Confirmed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the enrollment state from the config row
func (c TwoFactorConfig) State() State {
	switch {
	case c.Method == MethodNone || c.Method == "":
		return StateUnenrolled
	case !c.Confirmed:
		return StatePendingSetup
	case c.Enabled:
		return StateEnrolled
	default:
		return StateDisabled
	}
}

// PendingEnrollment is the one-time payload handed to a user starting
// setup. The secret and backup codes appear here once and are never
// retrievable again.
type PendingEnrollment struct {
	Method          Method
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// Directive is an admin-issued instruction attached to an email address,
// consumed exactly once when the user acts on it.
type Directive struct {
	ID             uuid.UUID
	Token          string
	Email          string
	ForcedUsername string
	Force2FA       Method // method the user must enroll in, MethodNone for none
	CreatedAt      time.Time
	ExpiresAt      time.Time
	UsedAt         *time.Time
	RevokedAt      *time.Time
}

// DirectoryUser is the slice of the user directory this package consumes
type DirectoryUser struct {
	ID               uuid.UUID
	Username         string
	Email            string
	RequireTwoFactor bool
}
