package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendOTPDeliversSixDigitCode(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	code := h.email.last()
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
	if h.sms.last() != "" {
		t.Fatal("email identifier must not route to SMS")
	}
}

func TestSendOTPRoutesPhoneToSMS(t *testing.T) {
	h := newTestEngine(t, nil)

	if err := h.engine.SendOTP(context.Background(), testPhone, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}
	if h.sms.last() == "" {
		t.Fatal("expected code via SMS sender")
	}
	if h.email.last() != "" {
		t.Fatal("phone identifier must not route to email")
	}
}

func TestSendOTPUnknownIdentifier(t *testing.T) {
	h := newTestEngine(t, nil)

	err := h.engine.SendOTP(context.Background(), "nobody@example.com", OTPLogin)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSendOTPDeliveryFailure(t *testing.T) {
	h := newTestEngine(t, nil)
	h.email.fail = true

	err := h.engine.SendOTP(context.Background(), testEmail, OTPLogin)
	if !errors.Is(err, ErrOTPDeliveryFailed) {
		t.Fatalf("expected ErrOTPDeliveryFailed, got %v", err)
	}
}

func TestSendOTPThrottled(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.OTP.MaxSendsPerWindow = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
			t.Fatalf("send %d failed: %v", i+1, err)
		}
	}

	err := h.engine.SendOTP(ctx, testEmail, OTPLogin)
	if !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
}

func TestLoginWithOTP(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	res, err := h.engine.LoginWithOTP(ctx, testEmail, h.email.last())
	if err != nil {
		t.Fatalf("LoginWithOTP failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("incomplete result: %+v", res)
	}
	if _, err := h.engine.ValidateAccess(ctx, res.AccessToken); err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
}

func TestLoginWithOTPSingleUse(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}
	code := h.email.last()

	if _, err := h.engine.LoginWithOTP(ctx, testEmail, code); err != nil {
		t.Fatalf("first LoginWithOTP failed: %v", err)
	}

	_, err := h.engine.LoginWithOTP(ctx, testEmail, code)
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP on replay, got %v", err)
	}
}

func TestLoginWithOTPWrongCodeKeepsRecord(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	if _, err := h.engine.LoginWithOTP(ctx, testEmail, "000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	// A mismatch does not burn the stored code.
	if _, err := h.engine.LoginWithOTP(ctx, testEmail, h.email.last()); err != nil {
		t.Fatalf("correct code rejected after mismatch: %v", err)
	}
}

func TestLoginWithOTPLockedAccount(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}
	if err := h.engine.LockAccount(ctx, h.userID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("LockAccount failed: %v", err)
	}

	_, err := h.engine.LoginWithOTP(ctx, testEmail, h.email.last())
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestOTPExpires(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.OTP.TTL = time.Minute
	})
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	h.redis.FastForward(2 * time.Minute)

	_, err := h.engine.LoginWithOTP(ctx, testEmail, h.email.last())
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP after expiry, got %v", err)
	}
}

func TestOTPPurposesAreIsolated(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	// A reset code must not log anyone in.
	if err := h.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	_, err := h.engine.LoginWithOTP(ctx, testEmail, h.email.last())
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP across purposes, got %v", err)
	}
}

func TestVerifyOTP(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	ok, err := h.engine.VerifyOTP(ctx, testEmail, "999999", OTPLogin)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if ok {
		t.Fatal("wrong code must not verify")
	}

	ok, err = h.engine.VerifyOTP(ctx, testEmail, h.email.last(), OTPLogin)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if !ok {
		t.Fatal("correct code must verify")
	}

	// Consumed: a second verify of the same code fails.
	ok, err = h.engine.VerifyOTP(ctx, testEmail, h.email.last(), OTPLogin)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if ok {
		t.Fatal("code must be single use")
	}
}

func TestResendOverwritesPreviousCode(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
		t.Fatalf("first SendOTP failed: %v", err)
	}
	first := h.email.last()

	var second string
	for i := 0; i < 4; i++ {
		if err := h.engine.SendOTP(ctx, testEmail, OTPLogin); err != nil {
			t.Fatalf("resend failed: %v", err)
		}
		second = h.email.last()
		if second != first {
			break
		}
	}
	if second == first {
		t.Skip("random codes collided repeatedly")
	}

	if _, err := h.engine.LoginWithOTP(ctx, testEmail, first); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("superseded code must not verify, got %v", err)
	}
	if _, err := h.engine.LoginWithOTP(ctx, testEmail, second); err != nil {
		t.Fatalf("latest code rejected: %v", err)
	}
}
