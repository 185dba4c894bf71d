package authcore

import "errors"

var (
	// ErrInvalidCredentials covers unknown identifiers and wrong passwords
	// alike so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by operations addressed to a specific
	// account, such as administrative lock changes.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountLocked is returned while a lock window is active,
	// regardless of whether the supplied password was correct.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordExpired signals that the credential is correct but the
	// password has aged out and must be reset before login.
	ErrPasswordExpired = errors.New("password expired")
	// ErrInvalidOTP covers wrong, expired and never-sent codes alike.
	ErrInvalidOTP = errors.New("invalid or expired otp")
	// ErrOTPDeliveryFailed reports a send failure from the email or SMS
	// transport. The stored code is still valid.
	ErrOTPDeliveryFailed = errors.New("otp delivery failed")
	// ErrOTPRateLimited rejects a send attempt that would exceed the
	// per-identifier or per-IP window.
	ErrOTPRateLimited = errors.New("otp send rate limited")
	// ErrSamePassword rejects a new password that verifies against the
	// currently stored hash.
	ErrSamePassword = errors.New("new password must be different from current password")
	// ErrPasswordPolicy rejects a new password that fails length rules.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrTokenExpired means the token was well formed and signed but past
	// its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed means the token failed parsing or signature
	// verification.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenRevoked means the token parsed fine but its ledger record is
	// revoked, missing, or its session is blacklisted.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrAccountExists is returned by CreateAccount on identifier collision.
	ErrAccountExists = errors.New("account already exists")
	// ErrSessionLimitExceeded is returned when a login would exceed the
	// principal's open-session allowance.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrSessionNotFound is returned by session introspection.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStorageFailure wraps Redis or audit-store failures. Operations
	// that hit it must not emit credentials.
	ErrStorageFailure = errors.New("storage backend failure")
	// ErrEngineNotReady is returned by Build when a required collaborator
	// is missing or the configuration is invalid.
	ErrEngineNotReady = errors.New("engine not initialized")
)
