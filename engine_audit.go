package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginLocked            = "login_locked"
	auditEventLoginPasswordExpired   = "login_password_expired"
	auditEventOTPLoginSuccess        = "otp_login_success"
	auditEventOTPLoginFailure        = "otp_login_failure"
	auditEventOTPSent                = "otp_sent"
	auditEventOTPDeliveryFailure     = "otp_delivery_failure"
	auditEventOTPVerifySuccess       = "otp_verify_success"
	auditEventOTPVerifyFailure       = "otp_verify_failure"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshRevoked         = "refresh_revoked_rejected"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventAccountCreated         = "account_created"
	auditEventAccountDuplicate       = "account_duplicate"
	auditEventAccountLocked          = "account_locked"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventAccountAutoLocked      = "account_auto_locked"
	auditEventVerificationConfirmed  = "verification_confirmed"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventSessionLimitExceeded   = "session_limit_exceeded"
)

// AuditErrorCode is the stable error vocabulary written into audit
// events. Sinks can key on these without parsing Go error text.
type AuditErrorCode string

const (
	auditErrInvalidCredentials   AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound         AuditErrorCode = "user_not_found"
	auditErrAccountLocked        AuditErrorCode = "account_locked"
	auditErrPasswordExpired      AuditErrorCode = "password_expired"
	auditErrInvalidOTP           AuditErrorCode = "invalid_otp"
	auditErrOTPDelivery          AuditErrorCode = "otp_delivery_failed"
	auditErrOTPRateLimited       AuditErrorCode = "otp_rate_limited"
	auditErrSamePassword         AuditErrorCode = "same_password"
	auditErrPasswordPolicy       AuditErrorCode = "password_policy"
	auditErrTokenExpired         AuditErrorCode = "token_expired"
	auditErrTokenMalformed       AuditErrorCode = "token_malformed"
	auditErrTokenRevoked         AuditErrorCode = "token_revoked"
	auditErrDuplicate            AuditErrorCode = "duplicate"
	auditErrSessionLimitExceeded AuditErrorCode = "session_limit_exceeded"
	auditErrSessionNotFound      AuditErrorCode = "session_not_found"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
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
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
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
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrPasswordExpired):
		return auditErrPasswordExpired
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrOTPDeliveryFailed):
		return auditErrOTPDelivery
	case errors.Is(err, ErrOTPRateLimited):
		return auditErrOTPRateLimited
	case errors.Is(err, ErrSamePassword):
		return auditErrSamePassword
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimitExceeded
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrStorageFailure):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
