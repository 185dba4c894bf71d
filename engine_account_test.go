package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAccount(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := h.engine.CreateAccount(ctx, CreateAccountRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "bobs-first-secret",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if res.UserID == "" {
		t.Fatal("missing user id")
	}

	if _, err := h.engine.Login(ctx, "bob", "bobs-first-secret"); err != nil {
		t.Fatalf("login as new account failed: %v", err)
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	h := newTestEngine(t, nil)

	_, err := h.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Username: testUsername,
		Password: "whatever-secret",
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreateAccountRequiresCredentials(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := h.engine.CreateAccount(ctx, CreateAccountRequest{Password: "secret"}); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy for missing username, got %v", err)
	}
	if _, err := h.engine.CreateAccount(ctx, CreateAccountRequest{Username: "carol"}); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy for missing password, got %v", err)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.RequestVerification(ctx, h.userID, ChannelEmail); err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}
	code := h.email.last()
	if code == "" {
		t.Fatal("no verification code delivered")
	}

	if err := h.engine.ConfirmVerification(ctx, h.userID, ChannelEmail, code); err != nil {
		t.Fatalf("ConfirmVerification failed: %v", err)
	}

	u, err := h.provider.GetByID(ctx, h.userID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !u.EmailVerified {
		t.Fatal("email not marked verified")
	}
	if u.PhoneVerified {
		t.Fatal("phone must stay unverified")
	}
}

func TestPhoneVerificationFlow(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.RequestVerification(ctx, h.userID, ChannelPhone); err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}
	code := h.sms.last()
	if code == "" {
		t.Fatal("no verification code delivered via SMS")
	}

	if err := h.engine.ConfirmVerification(ctx, h.userID, ChannelPhone, code); err != nil {
		t.Fatalf("ConfirmVerification failed: %v", err)
	}

	u, err := h.provider.GetByID(ctx, h.userID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !u.PhoneVerified {
		t.Fatal("phone not marked verified")
	}
}

func TestConfirmVerificationWrongCode(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	if err := h.engine.RequestVerification(ctx, h.userID, ChannelEmail); err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}

	err := h.engine.ConfirmVerification(ctx, h.userID, ChannelEmail, "000000")
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	u, _ := h.provider.GetByID(ctx, h.userID)
	if u.EmailVerified {
		t.Fatal("wrong code must not verify the channel")
	}
}

func TestRequestVerificationWithoutContact(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := h.engine.CreateAccount(ctx, CreateAccountRequest{
		Username: "dave",
		Password: "daves-first-secret",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := h.engine.RequestVerification(ctx, res.UserID, ChannelEmail); err == nil {
		t.Fatal("expected error for account without an email address")
	}
}

func TestUnlockClearsFailureCounter(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	// Two failures, then a manual unlock resets the count to zero.
	for i := 0; i < 2; i++ {
		if _, err := h.engine.Login(ctx, testUsername, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if err := h.engine.UnlockAccount(ctx, h.userID); err != nil {
		t.Fatalf("UnlockAccount failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := h.engine.Login(ctx, testUsername, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d after unlock crossed the threshold early: %v", i+1, err)
		}
	}
}
