package authcore

import (
	"context"
	"errors"
)

// RequestVerification sends a verification code to the principal's
// registered email or phone. The identifier used for storage and
// delivery is the contact value itself, so a later ConfirmVerification
// for the same channel finds it.
func (e *Engine) RequestVerification(ctx context.Context, userID string, channel VerificationChannel) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	identifier, purpose, err := verificationTarget(user, channel)
	if err != nil {
		return err
	}

	return e.SendOTP(ctx, identifier, purpose)
}

// ConfirmVerification consumes the code and flips the principal's
// verification flag for the channel. A wrong or expired code fails with
// ErrInvalidOTP and changes nothing.
func (e *Engine) ConfirmVerification(ctx context.Context, userID string, channel VerificationChannel, code string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	identifier, purpose, err := verificationTarget(user, channel)
	if err != nil {
		return err
	}

	ok, err := e.VerifyOTP(ctx, identifier, code, purpose)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}

	if err := e.userProvider.MarkVerified(ctx, userID, channel); err != nil {
		return wrapStorage(err)
	}

	e.emitAudit(ctx, auditEventVerificationConfirmed, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"channel": string(channel),
		}
	})
	return nil
}

var errNoVerificationContact = errors.New("principal has no contact for channel")

func verificationTarget(user *Principal, channel VerificationChannel) (string, OTPPurpose, error) {
	switch channel {
	case ChannelEmail:
		if user.Email == "" {
			return "", "", errNoVerificationContact
		}
		return user.Email, OTPEmailVerification, nil
	case ChannelPhone:
		if user.Phone == "" {
			return "", "", errNoVerificationContact
		}
		return user.Phone, OTPPhoneVerification, nil
	default:
		return "", "", errNoVerificationContact
	}
}
