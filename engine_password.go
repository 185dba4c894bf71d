package authcore

import (
	"context"
	"errors"
	"log"
	"time"
)

// RequestPasswordReset sends a reset code to the identifier. The code
// rides the standard OTP engine under the password_reset purpose.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}

	if err := e.SendOTP(ctx, identifier, OTPPasswordReset); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})
	return nil
}

// ConfirmPasswordReset consumes the reset code and installs the new
// password. The code is single-use; replaying it after a successful
// confirm fails with ErrInvalidOTP.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, identifier, code, newPassword string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	record, err := e.otpStore.Consume(ctx, OTPPasswordReset, identifier, code)
	if err != nil {
		switch {
		case errors.Is(err, errOTPNotFound), errors.Is(err, errOTPMismatch):
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrInvalidOTP, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
				}
			})
			return ErrInvalidOTP
		default:
			return wrapStorage(err)
		}
	}

	user, err := e.userProvider.GetByID(ctx, record.UserID)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, record.UserID, "", err, nil)
		return err
	}

	if err := e.installPassword(ctx, user, newPassword); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, user.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", nil, nil)
	return nil
}

// ChangePassword rotates a password for an authenticated caller. The
// current password must verify before anything changes.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if userID == "" || currentPassword == "" || newPassword == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return ErrPasswordPolicy
	}

	user, err := e.userProvider.GetByID(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return err
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "current_password_mismatch",
			}
		})
		return ErrInvalidCredentials
	}

	if err := e.installPassword(ctx, user, newPassword); err != nil {
		if errors.Is(err, ErrSamePassword) {
			e.metricInc(MetricPasswordChangeReuseRejected)
		}
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, "", nil, nil)
	return nil
}

// installPassword is the shared tail of reset and change: reject reuse
// by hash comparison, store the new hash with a re-dated expiry, revoke
// the cached refresh chain, and drop the pointer. Tokens already issued
// for other sessions stay valid until they expire; only the cached
// chain is cut.
func (e *Engine) installPassword(ctx context.Context, user *Principal, newPassword string) error {
	same, err := e.passwordHash.Verify(newPassword, user.PasswordHash)
	if err == nil && same {
		return ErrSamePassword
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}

	expiresAt := time.Time{}
	if e.config.Password.ExpiryWindow > 0 {
		expiresAt = time.Now().Add(e.config.Password.ExpiryWindow)
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, user.ID, newHash, expiresAt); err != nil {
		return wrapStorage(err)
	}

	if err := e.revokePointerChain(ctx, user.ID); err != nil {
		return err
	}
	if err := e.directory.DeletePointer(ctx, user.ID); err != nil {
		return wrapStorage(err)
	}

	if e.lockout != nil {
		if err := e.lockout.Reset(ctx, user.ID); err != nil {
			log.Print("authcore: lockout counter reset failed after password update")
		}
	}
	return nil
}
