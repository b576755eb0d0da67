// Package duo bridges verification to a Duo Universal Prompt deployment.
// The hosted prompt handles the challenge itself; this package owns the
// redirect contract: signed request JWTs, the anti-forgery state, and the
// health probe that decides whether Duo is usable at all.
package duo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vaultshare/mfa/pkg/config"
	"github.com/vaultshare/mfa/pkg/errors"
)

const (
	healthCheckPath = "/oauth/v1/health_check"
	authorizePath   = "/oauth/v1/authorize"

	// DefaultStateLifetime bounds how long a redirect may stay pending
	DefaultStateLifetime = 5 * time.Minute

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// HealthSummary reports whether the Duo deployment can take verifications
type HealthSummary struct {
	IsConfigured bool
	IsHealthy    bool
	Message      string
}

// RedirectSpec is everything a caller needs to send the browser to Duo
type RedirectSpec struct {
	AuthorizeURL string
	ClientID     string
	State        string
	RequestJWT   string
	ExpiresAt    time.Time
}

// Bridge implements the Duo Universal Prompt redirect contract
type Bridge struct {
	cfg           config.DuoConfig
	baseURL       string
	httpClient    *http.Client
	states        StateRepository
	stateLifetime time.Duration
}

// Option configures a Bridge
type Option func(*Bridge)

// WithHTTPClient overrides the HTTP client used for the health probe
func WithHTTPClient(client *http.Client) Option {
	return func(b *Bridge) {
		b.httpClient = client
	}
}

// WithStateRepository overrides the pending-state store
func WithStateRepository(repo StateRepository) Option {
	return func(b *Bridge) {
		b.states = repo
	}
}

// WithStateLifetime bounds how long a redirect may stay pending
func WithStateLifetime(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.stateLifetime = d
		}
	}
}

// WithBaseURL overrides the Duo API base URL. Tests point this at a local
// server; production always derives it from the configured hostname.
func WithBaseURL(baseURL string) Option {
	return func(b *Bridge) {
		b.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewBridge creates a Bridge for the given Duo configuration
func NewBridge(cfg config.DuoConfig, opts ...Option) *Bridge {
	bridge := &Bridge{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		states:        NewInMemoryStateRepository(),
		stateLifetime: DefaultStateLifetime,
	}
	if cfg.APIHostname != "" {
		bridge.baseURL = "https://" + cfg.APIHostname
	}

	for _, opt := range opts {
		opt(bridge)
	}
	return bridge
}

// HealthCheck probes the Duo deployment. Any transport failure, timeout, or
// non-OK response reports unhealthy; verification callers must treat an
// unhealthy Duo as a failed factor, never an approved one.
func (b *Bridge) HealthCheck(ctx context.Context) (HealthSummary, error) {
	if !b.cfg.IsConfigured() {
		return HealthSummary{Message: "duo credentials missing"},
			errors.New(errors.ErrCodeDuoNotConfigured, "duo is not configured")
	}

	assertion, err := b.signClientAssertion(b.baseURL + healthCheckPath)
	if err != nil {
		return HealthSummary{IsConfigured: true},
			errors.Wrap(err, errors.ErrCodeInternal, "failed to sign client assertion")
	}

	form := url.Values{}
	form.Set("client_id", b.cfg.ClientID)
	form.Set("client_assertion", assertion)
	form.Set("client_assertion_type", clientAssertionType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+healthCheckPath, strings.NewReader(form.Encode()))
	if err != nil {
		return HealthSummary{IsConfigured: true},
			errors.Wrap(err, errors.ErrCodeInternal, "failed to build health check request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		slog.Error("Duo health check failed", "error", err)
		return HealthSummary{IsConfigured: true, Message: "duo unreachable"},
			errors.Wrap(err, errors.ErrCodeDuoUnreachable, "duo health check failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return HealthSummary{IsConfigured: true, Message: "duo unreachable"},
			errors.Wrap(err, errors.ErrCodeDuoUnreachable, "failed to read health check response")
	}

	var payload struct {
		Stat string `json:"stat"`
	}
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &payload) != nil || payload.Stat != "OK" {
		slog.Warn("Duo health check rejected", "status", resp.StatusCode)
		return HealthSummary{IsConfigured: true, Message: "duo health check rejected"},
			errors.New(errors.ErrCodeDuoUnreachable, "duo health check rejected")
	}

	return HealthSummary{IsConfigured: true, IsHealthy: true}, nil
}

// BuildRedirectRequest prepares a signed redirect to the hosted prompt for
// the given username. The returned state is stored single-use; the caller
// round-trips it through Duo and presents it to ValidateCallback.
func (b *Bridge) BuildRedirectRequest(ctx context.Context, username string) (RedirectSpec, error) {
	if !b.cfg.IsConfigured() {
		return RedirectSpec{}, errors.New(errors.ErrCodeDuoNotConfigured, "duo is not configured")
	}
	if username == "" {
		return RedirectSpec{}, errors.InvalidInput("username", "cannot be empty")
	}

	state, err := generateSecureState()
	if err != nil {
		return RedirectSpec{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate state")
	}

	expiresAt := time.Now().UTC().Add(b.stateLifetime)
	if err := b.states.StoreState(State{Value: state, Username: username, ExpiresAt: expiresAt}); err != nil {
		return RedirectSpec{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to store state")
	}

	requestJWT, err := b.signRequestJWT(username, state, expiresAt)
	if err != nil {
		return RedirectSpec{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to sign request")
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", b.cfg.ClientID)
	query.Set("request", requestJWT)

	slog.Info("Built duo redirect", "username", username)
	return RedirectSpec{
		AuthorizeURL: b.baseURL + authorizePath + "?" + query.Encode(),
		ClientID:     b.cfg.ClientID,
		State:        state,
		RequestJWT:   requestJWT,
		ExpiresAt:    expiresAt,
	}, nil
}

// ValidateCallback checks the returning state and assertion. The state is
// consumed on first presentation regardless of outcome; a missing, expired,
// or reused state is a fatal STATE_MISMATCH. Returns the username the
// redirect was built for.
func (b *Bridge) ValidateCallback(ctx context.Context, state, remoteAssertion string) (string, error) {
	if state == "" {
		return "", errors.New(errors.ErrCodeStateMismatch, "missing state")
	}

	pending, ok := b.states.GetState(state)
	if !ok {
		slog.Warn("Duo callback with unknown state")
		return "", errors.New(errors.ErrCodeStateMismatch, "unknown or reused state")
	}

	// single use, even when validation fails below
	if err := b.states.DeleteState(state); err != nil {
		slog.Warn("Failed to delete state", "error", err)
	}

	if time.Now().UTC().After(pending.ExpiresAt) {
		return "", errors.New(errors.ErrCodeStateMismatch, "state expired")
	}

	if remoteAssertion == "" {
		return "", errors.New(errors.ErrCodeInvalidCode, "missing duo assertion")
	}

	return pending.Username, nil
}

func (b *Bridge) signClientAssertion(audience string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": b.cfg.ClientID,
		"sub": b.cfg.ClientID,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(b.cfg.ClientSecret))
}

func (b *Bridge) signRequestJWT(username, state string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":           b.cfg.ClientID,
		"aud":           b.baseURL,
		"exp":           expiresAt.Unix(),
		"scope":         "openid",
		"response_type": "code",
		"client_id":     b.cfg.ClientID,
		"redirect_uri":  b.cfg.RedirectURI,
		"state":         state,
		"duo_uname":     username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(b.cfg.ClientSecret))
}

// generateSecureState generates a cryptographically secure random state parameter
func generateSecureState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
