// Package api exposes the second-factor lifecycle over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/vaultshare/mfa/pkg/devicetrust"
	"github.com/vaultshare/mfa/pkg/enrollment"
	"github.com/vaultshare/mfa/pkg/errors"
)

// Handler exposes the enrollment orchestrator over HTTP
type Handler struct {
	orchestrator *enrollment.Orchestrator
}

// NewHandler creates a new enrollment API handler
func NewHandler(orchestrator *enrollment.Orchestrator) *Handler {
	return &Handler{
		orchestrator: orchestrator,
	}
}

// Routes registers the user-facing endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/setup", h.Setup)
	r.Post("/confirm", h.Confirm)
	r.Post("/verify", h.Verify)
	r.Get("/status", h.Status)
	r.Post("/disable", h.Disable)
	r.Post("/enable", h.Enable)
	r.Post("/reset", h.Reset)
	r.Post("/backup-codes", h.RegenerateBackupCodes)
	r.Post("/duo/redirect", h.DuoRedirect)
	r.Post("/duo/callback", h.DuoCallback)
	r.Post("/directives/consume", h.ConsumeDirective)
}

// AdminRoutes registers the operator endpoints
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/duo/health", h.DuoHealth)
	r.Get("/lockout/{userID}", h.LockoutStatus)
	r.Delete("/lockout/{userID}", h.ClearLockout)
	r.Post("/directives", h.CreateDirective)
	r.Get("/directives", h.ListDirectives)
	r.Delete("/directives/{token}", h.RevokeDirective)
}

// Setup handles POST /setup
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, "Invalid request body")
		return
	}

	method, err := enrollment.ParseMethod(req.Method)
	if err != nil {
		renderBadRequest(w, r, "Unknown method")
		return
	}

	pending, err := h.orchestrator.Begin(r.Context(), userID, method)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var response SetupResponse
	copier.Copy(&response, &pending)
	response.Method = string(pending.Method)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// Confirm handles POST /confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, "Invalid request body")
		return
	}
	if req.Code == "" {
		renderBadRequest(w, r, "Code is required")
		return
	}

	if err := h.orchestrator.Confirm(r.Context(), userID, req.Code, time.Now().UTC()); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Two-factor authentication enabled"})
}

// Verify handles POST /verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, "Invalid request body")
		return
	}

	result, err := h.orchestrator.Verify(r.Context(), enrollment.VerifyParams{
		UserID:         userID,
		Credential:     req.Code,
		Fingerprint:    devicetrust.GetRequestFingerprint(r),
		IPAddress:      r.RemoteAddr,
		RememberDevice: req.RememberDevice,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderVerifyResult(w, r, result)
}

// Status handles GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	status, err := h.orchestrator.GetStatus(r.Context(), userID, time.Now().UTC())
	if err != nil {
		renderError(w, r, err)
		return
	}

	var response StatusResponse
	copier.Copy(&response, &status)
	if status.Locked {
		response.RetryAfter = retryAfterSeconds(status.RetryAfter)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// Disable handles POST /disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	if err := h.orchestrator.Disable(r.Context(), userID); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Two-factor authentication disabled"})
}

// Enable handles POST /enable
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	if err := h.orchestrator.Enable(r.Context(), userID); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Two-factor authentication enabled"})
}

// Reset handles POST /reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	pending, err := h.orchestrator.Reset(r.Context(), userID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var response SetupResponse
	copier.Copy(&response, &pending)
	response.Method = string(pending.Method)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// RegenerateBackupCodes handles POST /backup-codes
func (h *Handler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	codes, err := h.orchestrator.RegenerateBackupCodes(r.Context(), userID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, BackupCodesResponse{BackupCodes: codes})
}

// DuoRedirect handles POST /duo/redirect
func (h *Handler) DuoRedirect(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	spec, err := h.orchestrator.BeginDuoRedirect(r.Context(), userID)
	if err != nil {
		if isDuoFailure(err) {
			renderSecondFactorUnavailable(w, r)
			return
		}
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DuoRedirectResponse{
		AuthorizeURL: spec.AuthorizeURL,
		State:        spec.State,
	})
}

// DuoCallback handles POST /duo/callback
func (h *Handler) DuoCallback(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	var req DuoCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, "Invalid request body")
		return
	}
	if req.State == "" {
		renderBadRequest(w, r, "State is required")
		return
	}

	result, err := h.orchestrator.VerifyDuoCallback(r.Context(), req.State, req.DuoCode, enrollment.VerifyParams{
		UserID:         userID,
		Fingerprint:    devicetrust.GetRequestFingerprint(r),
		IPAddress:      r.RemoteAddr,
		RememberDevice: req.RememberDevice,
	})
	if err != nil {
		if isDuoFailure(err) {
			renderSecondFactorUnavailable(w, r)
			return
		}
		renderError(w, r, err)
		return
	}

	renderVerifyResult(w, r, result)
}

// DuoHealth handles GET /duo/health
func (h *Handler) DuoHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.DuoHealth(r.Context())
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeDuoNotConfigured {
			render.Status(r, http.StatusOK)
			render.JSON(w, r, DuoHealthResponse{Configured: false, Message: "Duo is not configured"})
			return
		}
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DuoHealthResponse{
		Configured: summary.IsConfigured,
		Healthy:    summary.IsHealthy,
		Message:    summary.Message,
	})
}

// LockoutStatus handles GET /lockout/{userID}
func (h *Handler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		renderBadRequest(w, r, "Invalid user ID")
		return
	}

	decision, err := h.orchestrator.IsLockedOut(r.Context(), userID, time.Now().UTC())
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := LockoutResponse{Locked: decision.Locked, Failures: decision.Failures}
	if decision.Locked {
		response.RetryAfter = retryAfterSeconds(decision.RetryAfter)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// ClearLockout handles DELETE /lockout/{userID}
func (h *Handler) ClearLockout(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		renderBadRequest(w, r, "Invalid user ID")
		return
	}

	if err := h.orchestrator.ClearLockout(r.Context(), userID); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Lockout cleared"})
}

// CreateDirective handles POST /directives
func (h *Handler) CreateDirective(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, "Invalid request body")
		return
	}

	params := enrollment.CreateDirectiveParams{
		Email:          req.Email,
		ForcedUsername: req.ForcedUsername,
		Force2FA:       enrollment.Method(req.Force2FA),
	}
	if req.TTLSeconds != nil {
		params.TTL = time.Duration(*req.TTLSeconds) * time.Second
	}

	directive, err := h.orchestrator.CreateDirective(r.Context(), params)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toDirectiveResponse(directive))
}

// ListDirectives handles GET /directives?email=
func (h *Handler) ListDirectives(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		renderBadRequest(w, r, "Email is required")
		return
	}

	directives, err := h.orchestrator.ListDirectives(r.Context(), email)
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := make([]DirectiveResponse, len(directives))
	for i, directive := range directives {
		response[i] = toDirectiveResponse(directive)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// RevokeDirective handles DELETE /directives/{token}
func (h *Handler) RevokeDirective(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.orchestrator.RevokeDirective(r.Context(), token); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Directive revoked"})
}

// ConsumeDirective handles POST /directives/consume
func (h *Handler) ConsumeDirective(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		renderUnauthorized(w, r)
		return
	}

	var req ConsumeDirectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, "Invalid request body")
		return
	}
	if req.Token == "" {
		renderBadRequest(w, r, "Token is required")
		return
	}

	directive, err := h.orchestrator.ConsumeDirective(r.Context(), req.Token, userID, time.Now().UTC())
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toDirectiveResponse(directive))
}

func toDirectiveResponse(directive enrollment.Directive) DirectiveResponse {
	response := DirectiveResponse{
		Token:          directive.Token,
		Email:          directive.Email,
		ForcedUsername: directive.ForcedUsername,
		Force2FA:       string(directive.Force2FA),
		CreatedAt:      directive.CreatedAt.Format(time.RFC3339),
		ExpiresAt:      directive.ExpiresAt.Format(time.RFC3339),
	}
	if directive.UsedAt != nil {
		usedAt := directive.UsedAt.Format(time.RFC3339)
		response.UsedAt = &usedAt
	}
	if directive.RevokedAt != nil {
		revokedAt := directive.RevokedAt.Format(time.RFC3339)
		response.RevokedAt = &revokedAt
	}
	return response
}

// renderVerifyResult maps a verification outcome onto the wire. Invalid and
// already-used codes collapse to one message so the endpoint is not an
// oracle for which codes ever existed.
func renderVerifyResult(w http.ResponseWriter, r *http.Request, result enrollment.VerifyResult) {
	if result.OK {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, VerifyResponse{
			Verified:       true,
			DeviceTrusted:  result.DeviceTrusted,
			UsedBackupCode: result.UsedBackupCode,
		})
		return
	}

	switch result.Reason {
	case errors.ErrCodeRateLimited:
		seconds := retryAfterSeconds(result.RetryAfter)
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, VerifyResponse{Verified: false, RetryAfter: seconds})
	case errors.ErrCodeInvalidCode, errors.ErrCodeCodeAlreadyUsed:
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Invalid code"})
	default:
		render.Status(r, errors.MapErrorCodeToHTTPStatus(result.Reason))
		render.JSON(w, r, ErrorResponse{Error: reasonMessage(result.Reason), Code: string(result.Reason)})
	}
}

func reasonMessage(code errors.ErrorCode) string {
	switch code {
	case errors.ErrCodeNotEnrolled:
		return "Two-factor authentication is not enrolled"
	case errors.ErrCodeSetupNotConfirmed:
		return "Two-factor setup has not been confirmed"
	case errors.ErrCodeStateMismatch:
		return "Verification state did not match"
	default:
		return "Verification failed"
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := errors.MapErrorCodeToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		render.Status(r, status)
		render.JSON(w, r, ErrorResponse{Error: "Internal server error"})
		return
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error(), Code: string(code)})
}

// isDuoFailure reports whether the error is a Duo configuration or
// reachability problem. Non-admin routes hide the detail.
func isDuoFailure(err error) bool {
	code := errors.GetCode(err)
	return code == errors.ErrCodeDuoNotConfigured || code == errors.ErrCodeDuoUnreachable
}

func renderSecondFactorUnavailable(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, ErrorResponse{Error: "Second factor unavailable"})
}

func renderBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: message})
}

func renderUnauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
}

func retryAfterSeconds(d time.Duration) *int64 {
	seconds := int64(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &seconds
}

// getUserIDFromContext extracts the user ID from the JWT in the request
// context set by the jwtauth middleware
func getUserIDFromContext(r *http.Request) (uuid.UUID, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return uuid.Nil, err
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok || userIDStr == "" {
		return uuid.Nil, errors.New(errors.ErrCodeUnauthorized, "user_id not found in token claims")
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid user_id in token claims")
	}
	return userID, nil
}
