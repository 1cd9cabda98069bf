package authcore

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventTokenIssued             = "token_issued"
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshInvalid          = "refresh_invalid"
	auditEventRefreshReuseDetected    = "refresh_reuse_detected"
	auditEventLogout                  = "logout"
	auditEventRegistration            = "registration"
	auditEventVerificationRequest     = "verification_request"
	auditEventVerificationConfirm     = "verification_confirm"
	auditEventMagicLinkRequest        = "magic_link_request"
	auditEventMagicLinkConfirm        = "magic_link_confirm"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventFederatedLogin          = "federated_login"
	auditEventFederatedLinkSelected   = "federated_link_selected"
	auditEventFederatedSignupSelected = "federated_signup_selected"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrNotConfigured      AuditErrorCode = "not_configured"
	auditErrPrecondition       AuditErrorCode = "precondition_failed"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDifferentBrowser   AuditErrorCode = "different_browser"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrLinkMismatch       AuditErrorCode = "link_candidate_mismatch"
	auditErrDelivery           AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	identifier string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		IP:         ClientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrPasswordNotSet):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrMagicLinkEmailNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshTokenNotFound), errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrMaxAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrEmailDeliveryNotConfigured),
		errors.Is(err, ErrPhoneDeliveryNotConfigured),
		errors.Is(err, ErrMagicLinkDisabled),
		errors.Is(err, ErrAccountLinkingDisabled):
		return auditErrNotConfigured
	case errors.Is(err, ErrEmailNotSet),
		errors.Is(err, ErrPhoneNotSet),
		errors.Is(err, ErrEmailAlreadyVerified),
		errors.Is(err, ErrPhoneAlreadyVerified),
		errors.Is(err, ErrUnsupportedIdentifier):
		return auditErrPrecondition
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrMagicLinkDifferentBrowser):
		return auditErrDifferentBrowser
	case errors.Is(err, ErrDuplicateIdentifier):
		return auditErrDuplicate
	case errors.Is(err, ErrLinkCandidateMismatch):
		return auditErrLinkMismatch
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
