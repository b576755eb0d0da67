package api

// SetupRequest starts enrollment in a method
type SetupRequest struct {
	Method string `json:"method"`
}

// SetupResponse carries the one-time enrollment payload. The secret and
// backup codes are shown here once and never again.
type SetupResponse struct {
	Method          string   `json:"method"`
	Secret          string   `json:"secret,omitempty"`
	ProvisioningURI string   `json:"provisioning_uri,omitempty"`
	QRCodePNG       []byte   `json:"qr_code_png,omitempty"`
	BackupCodes     []string `json:"backup_codes"`
}

// ConfirmRequest completes a pending TOTP setup
type ConfirmRequest struct {
	Code string `json:"code"`
}

// VerifyRequest submits a credential for verification
type VerifyRequest struct {
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device,omitempty"`
}

// VerifyResponse is the verification outcome
type VerifyResponse struct {
	Verified       bool   `json:"verified"`
	DeviceTrusted  bool   `json:"device_trusted,omitempty"`
	UsedBackupCode bool   `json:"used_backup_code,omitempty"`
	RetryAfter     *int64 `json:"retry_after_seconds,omitempty"`
}

// StatusResponse reports the user's second-factor standing
type StatusResponse struct {
	State                string `json:"state"`
	Method               string `json:"method"`
	BackupCodesRemaining int    `json:"backup_codes_remaining"`
	Locked               bool   `json:"locked"`
	RetryAfter           *int64 `json:"retry_after_seconds,omitempty"`
}

// BackupCodesResponse carries a freshly generated recovery code set
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// LockoutResponse reports a user's lockout standing
type LockoutResponse struct {
	Locked     bool   `json:"locked"`
	Failures   int    `json:"failures"`
	RetryAfter *int64 `json:"retry_after_seconds,omitempty"`
}

// DuoHealthResponse reports reachability of the Duo deployment
type DuoHealthResponse struct {
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Message    string `json:"message,omitempty"`
}

// DuoRedirectResponse carries the hosted-prompt redirect
type DuoRedirectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// DuoCallbackRequest settles a hosted-prompt verification
type DuoCallbackRequest struct {
	State          string `json:"state"`
	DuoCode        string `json:"duo_code"`
	RememberDevice bool   `json:"remember_device,omitempty"`
}

// CreateDirectiveRequest issues an enrollment directive
type CreateDirectiveRequest struct {
	Email          string `json:"email"`
	ForcedUsername string `json:"forced_username,omitempty"`
	Force2FA       string `json:"force_2fa,omitempty"`
	TTLSeconds     *int64 `json:"ttl_seconds,omitempty"`
}

// DirectiveResponse describes an enrollment directive
type DirectiveResponse struct {
	Token          string  `json:"token"`
	Email          string  `json:"email"`
	ForcedUsername string  `json:"forced_username,omitempty"`
	Force2FA       string  `json:"force_2fa"`
	CreatedAt      string  `json:"created_at"`
	ExpiresAt      string  `json:"expires_at"`
	UsedAt         *string `json:"used_at,omitempty"`
	RevokedAt      *string `json:"revoked_at,omitempty"`
}

// ConsumeDirectiveRequest redeems a directive for the acting user
type ConsumeDirectiveRequest struct {
	Token string `json:"token"`
}

// MessageResponse is a generic success message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
