// Package totp implements RFC 6238 time-based one-time password generation
// and verification for authenticator-app enrollment.
package totp

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultPeriod is the TOTP step size in seconds
	DefaultPeriod = 30
	// DefaultSkew is the number of adjacent steps accepted on either side
	DefaultSkew = 1
	// DefaultSecretSize is the raw secret length in bytes (160 bits)
	DefaultSecretSize = 20

	// MinSecretSize is the smallest raw secret accepted (128 bits)
	MinSecretSize = 16
)

// Engine generates and verifies TOTP passcodes for a fixed issuer and policy.
type Engine struct {
	issuer     string
	period     uint
	skew       uint
	secretSize uint
}

// Option configures an Engine
type Option func(*Engine)

// WithPeriod sets the TOTP step size in seconds
func WithPeriod(period uint) Option {
	return func(e *Engine) {
		e.period = period
	}
}

// WithSkew sets how many adjacent steps are accepted on either side
func WithSkew(skew uint) Option {
	return func(e *Engine) {
		e.skew = skew
	}
}

// WithSecretSize sets the raw secret length in bytes
func WithSecretSize(size uint) Option {
	return func(e *Engine) {
		if size < MinSecretSize {
			size = MinSecretSize
		}
		e.secretSize = size
	}
}

// NewEngine creates an Engine for the given issuer
func NewEngine(issuer string, opts ...Option) *Engine {
	engine := &Engine{
		issuer:     issuer,
		period:     DefaultPeriod,
		skew:       DefaultSkew,
		secretSize: DefaultSecretSize,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Issuer returns the issuer embedded in provisioning URIs
func (e *Engine) Issuer() string {
	return e.issuer
}

// GenerateSecret returns a new random base32-encoded shared secret
func (e *Engine) GenerateSecret() (string, error) {
	raw, err := randomBytes(int(e.secretSize))
	if err != nil {
		slog.Error("Failed to generate totp secret", "error", err)
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return EncodeSecret(raw), nil
}

// ProvisioningURI builds the otpauth:// URI an authenticator app scans
func (e *Engine) ProvisioningURI(account, secret string) (string, error) {
	key, err := e.buildKey(account, secret)
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// QRCode renders the provisioning URI as a PNG image
func (e *Engine) QRCode(account, secret string) ([]byte, error) {
	key, err := e.buildKey(account, secret)
	if err != nil {
		return nil, err
	}

	img, err := key.Image(256, 256)
	if err != nil {
		slog.Error("Failed to render QR code", "account", account, "error", err)
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code png: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify reports whether code is valid for secret at the given time.
// Malformed codes fail before any HMAC computation. Verification accepts
// the current step plus the configured skew on either side and nothing else.
func (e *Engine) Verify(secret, code string, at time.Time) bool {
	if !isDigits(code, 6) {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    e.period,
		Skew:      e.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to validate totp passcode", "error", err)
		return false
	}
	return valid
}

// GenerateCode produces the passcode for secret at the given time.
// Used by tests and operator tooling, never by the verification path.
func (e *Engine) GenerateCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at.UTC(), totp.ValidateOpts{
		Period:    e.period,
		Skew:      e.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to generate totp passcode", "error", err)
		return "", err
	}
	return code, nil
}

func (e *Engine) buildKey(account, secret string) (*otp.Key, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid totp secret: %w", err)
	}
	if len(raw) < MinSecretSize {
		return nil, fmt.Errorf("totp secret too short: %d bytes", len(raw))
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		Secret:      raw,
		Period:      e.period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to build totp key", "account", account, "error", err)
		return nil, err
	}
	return key, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
