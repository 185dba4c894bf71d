package authcore

import (
	"context"
	"time"

	"github.com/cliniqa/authcore/session"
)

// Principal is the account record the engine authenticates against. It
// lives in the host's database behind [UserProvider]; the engine never
// persists it.
type Principal struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash string

	// IsLocked and LockedTill together form the lock state. A lock is
	// only effective while LockedTill is in the future; a stale flag
	// with an elapsed LockedTill means the account is usable again.
	IsLocked   bool
	LockedTill time.Time

	PasswordExpiresAt time.Time

	EmailVerified bool
	PhoneVerified bool

	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions int
}

// EffectivelyLocked derives the real lock state. The raw IsLocked flag
// is never consulted on its own.
func (p *Principal) EffectivelyLocked(now time.Time) bool {
	return p != nil && p.IsLocked && p.LockedTill.After(now)
}

// PasswordExpired reports whether the password has aged out. A zero
// PasswordExpiresAt means the credential never expires.
func (p *Principal) PasswordExpired(now time.Time) bool {
	return p != nil && !p.PasswordExpiresAt.IsZero() && !p.PasswordExpiresAt.After(now)
}

// VerificationChannel names a verifiable contact field on the Principal.
type VerificationChannel string

const (
	ChannelEmail VerificationChannel = "email"
	ChannelPhone VerificationChannel = "phone"
)

// OTPPurpose partitions the one-time code namespace. A code sent for one
// purpose never verifies under another.
type OTPPurpose string

const (
	OTPLogin             OTPPurpose = "login"
	OTPPasswordReset     OTPPurpose = "password_reset"
	OTPEmailVerification OTPPurpose = "email_verification"
	OTPPhoneVerification OTPPurpose = "phone_verification"
)

// UserProvider is the credential store interface the host implements to
// integrate the engine with its user database. Lookup methods return
// [ErrUserNotFound] when no account matches.
type UserProvider interface {
	GetByUsername(ctx context.Context, username string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	GetByPhone(ctx context.Context, phone string) (*Principal, error)
	GetByID(ctx context.Context, userID string) (*Principal, error)
	Create(ctx context.Context, input CreatePrincipalInput) (*Principal, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string, expiresAt time.Time) error
	SetLockState(ctx context.Context, userID string, locked bool, lockedTill time.Time) error
	MarkVerified(ctx context.Context, userID string, channel VerificationChannel) error
}

// CreatePrincipalInput is the input for [UserProvider.Create].
type CreatePrincipalInput struct {
	Username          string
	Email             string
	Phone             string
	PasswordHash      string
	PasswordExpiresAt time.Time
	MaxSessions       int
}

// LoginResult is returned by the login family of operations.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	UserID       string
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	Username  string
	SessionID string
}

// CreateAccountRequest is the input for [Engine.CreateAccount]. Username
// and Password are required; Email and Phone are optional contact
// channels.
type CreateAccountRequest struct {
	Username    string
	Email       string
	Phone       string
	Password    string
	MaxSessions int
}

// CreateAccountResult is returned by [Engine.CreateAccount].
type CreateAccountResult struct {
	UserID string
}

// SessionRecord is one row of the login audit trail.
type SessionRecord = session.Record
