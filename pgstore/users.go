package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	authcore "github.com/cliniqa/authcore"
)

const uniqueViolation = "23505"

const principalColumns = `id, username, COALESCE(email, ''), COALESCE(phone, ''),
	password_hash, is_locked, locked_till, password_expires_at,
	email_verified, phone_verified, max_sessions`

// UserStore implements authcore.UserProvider over the auth_principal
// table.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*authcore.Principal, error) {
	return s.getBy(ctx, "username", username)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*authcore.Principal, error) {
	return s.getBy(ctx, "email", email)
}

func (s *UserStore) GetByPhone(ctx context.Context, phone string) (*authcore.Principal, error) {
	return s.getBy(ctx, "phone", phone)
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*authcore.Principal, error) {
	return s.getBy(ctx, "id", userID)
}

func (s *UserStore) getBy(ctx context.Context, column, value string) (*authcore.Principal, error) {
	// column is one of four fixed names, never caller input.
	query := `SELECT ` + principalColumns + ` FROM auth_principal WHERE ` + column + ` = $1`

	var (
		p          authcore.Principal
		lockedTill *time.Time
		expiresAt  *time.Time
	)
	err := s.pool.QueryRow(ctx, query, value).Scan(
		&p.ID, &p.Username, &p.Email, &p.Phone,
		&p.PasswordHash, &p.IsLocked, &lockedTill, &expiresAt,
		&p.EmailVerified, &p.PhoneVerified, &p.MaxSessions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authcore.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if lockedTill != nil {
		p.LockedTill = *lockedTill
	}
	if expiresAt != nil {
		p.PasswordExpiresAt = *expiresAt
	}
	return &p, nil
}

func (s *UserStore) Create(ctx context.Context, input authcore.CreatePrincipalInput) (*authcore.Principal, error) {
	p := &authcore.Principal{
		ID:                uuid.NewString(),
		Username:          input.Username,
		Email:             input.Email,
		Phone:             input.Phone,
		PasswordHash:      input.PasswordHash,
		PasswordExpiresAt: input.PasswordExpiresAt,
		MaxSessions:       input.MaxSessions,
	}

	const query = `
		INSERT INTO auth_principal
			(id, username, email, phone, password_hash, password_expires_at, max_sessions)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Username, p.Email, p.Phone, p.PasswordHash,
		nullableTime(p.PasswordExpiresAt), p.MaxSessions,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, authcore.ErrAccountExists
		}
		return nil, err
	}
	return p, nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string, expiresAt time.Time) error {
	const query = `
		UPDATE auth_principal
		SET password_hash = $2, password_expires_at = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, userID, newHash, nullableTime(expiresAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) SetLockState(ctx context.Context, userID string, locked bool, lockedTill time.Time) error {
	const query = `
		UPDATE auth_principal
		SET is_locked = $2, locked_till = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, userID, locked, nullableTime(lockedTill))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) MarkVerified(ctx context.Context, userID string, channel authcore.VerificationChannel) error {
	column := "email_verified"
	if channel == authcore.ChannelPhone {
		column = "phone_verified"
	}
	query := `UPDATE auth_principal SET ` + column + ` = TRUE, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
