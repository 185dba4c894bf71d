package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cliniqa/authcore/internal"
	"github.com/cliniqa/authcore/internal/limiters"
)

// SendOTP generates a single-use code for the given purpose and
// delivers it over email or SMS depending on the identifier shape. A
// new send replaces any unconsumed predecessor; only the latest code
// verifies. A delivery failure leaves the stored code valid, so a
// retried send after a transient transport error behaves the same as
// the first.
func (e *Engine) SendOTP(ctx context.Context, identifier string, purpose OTPPurpose) error {
	if e == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}

	if e.otpLimiter != nil {
		if err := e.otpLimiter.CheckSend(ctx, string(purpose), identifier, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, limiters.ErrOTPRateLimited) {
				e.emitAudit(ctx, auditEventOTPDeliveryFailure, false, "", "", ErrOTPRateLimited, func() map[string]string {
					return map[string]string{
						"identifier": identifier,
						"purpose":    string(purpose),
					}
				})
				return ErrOTPRateLimited
			}
			return wrapStorage(err)
		}
	}

	user, err := e.resolvePrincipal(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return err
	}

	now := time.Now()
	record := &otpRecord{
		UserID:    user.ID,
		Code:      code,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.otpStore.Save(ctx, purpose, identifier, record, e.config.OTP.TTL); err != nil {
		return wrapStorage(err)
	}

	if strings.Contains(identifier, "@") {
		err = e.emailSender.SendCode(ctx, identifier, string(purpose), code)
	} else {
		err = e.smsSender.SendCode(ctx, identifier, string(purpose), code)
	}
	if err != nil {
		e.metricInc(MetricOTPDeliveryFailure)
		e.emitAudit(ctx, auditEventOTPDeliveryFailure, false, user.ID, "", ErrOTPDeliveryFailed, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"purpose":    string(purpose),
			}
		})
		return errors.Join(ErrOTPDeliveryFailed, err)
	}

	e.metricInc(MetricOTPSent)
	e.emitAudit(ctx, auditEventOTPSent, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"purpose":    string(purpose),
		}
	})
	return nil
}

// VerifyOTP consumes the stored code for the identifier/purpose pair.
// A correct code is spent atomically and returns true; a wrong code
// leaves the record intact for retry within its TTL and returns false.
// Missing and expired records are indistinguishable and return false.
func (e *Engine) VerifyOTP(ctx context.Context, identifier, code string, purpose OTPPurpose) (bool, error) {
	if e == nil || e.otpStore == nil {
		return false, ErrEngineNotReady
	}

	record, err := e.otpStore.Consume(ctx, purpose, identifier, code)
	if err != nil {
		switch {
		case errors.Is(err, errOTPNotFound), errors.Is(err, errOTPMismatch):
			e.metricInc(MetricOTPVerifyFailure)
			e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", "", ErrInvalidOTP, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"purpose":    string(purpose),
				}
			})
			return false, nil
		default:
			return false, wrapStorage(err)
		}
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, record.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"purpose":    string(purpose),
		}
	})
	return true, nil
}
