package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniqa/authcore/session"
)

const sessionColumns = `id, user_id, ip_address, user_agent, login_time, logout_time, total_seconds`

// SessionStore implements session.AuditStore over the auth_session
// table.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, rec *session.Record) error {
	const query = `
		INSERT INTO auth_session (id, user_id, ip_address, user_agent, login_time)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.IPAddress, rec.UserAgent, rec.LoginTime,
	)
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Record, error) {
	const query = `SELECT ` + sessionColumns + ` FROM auth_session WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

func (s *SessionStore) OpenSessions(ctx context.Context, userID string) ([]*session.Record, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM auth_session
		WHERE user_id = $1 AND logout_time IS NULL
		ORDER BY login_time DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// Close stamps logout_time exactly once. The logout_time IS NULL guard
// makes a second close a no-op rather than an overwrite.
func (s *SessionStore) Close(ctx context.Context, id string, logoutAt time.Time, total time.Duration) (bool, error) {
	const query = `
		UPDATE auth_session
		SET logout_time = $2, total_seconds = $3
		WHERE id = $1 AND logout_time IS NULL`

	tag, err := s.pool.Exec(ctx, query, id, logoutAt, int64(total.Seconds()))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SessionStore) LastSession(ctx context.Context, userID string) (*session.Record, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM auth_session
		WHERE user_id = $1
		ORDER BY login_time DESC
		LIMIT 1`

	return s.scanOne(s.pool.QueryRow(ctx, query, userID))
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit int) ([]*session.Record, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM auth_session
		WHERE user_id = $1
		ORDER BY login_time DESC
		LIMIT $2`

	// A NULL limit means LIMIT ALL, matching MemoryStore's treatment
	// of a non-positive limit as unbounded.
	var bound any
	if limit > 0 {
		bound = limit
	}
	rows, err := s.pool.Query(ctx, query, userID, bound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func (s *SessionStore) scanOne(row pgx.Row) (*session.Record, error) {
	var (
		rec          session.Record
		totalSeconds int64
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.IPAddress, &rec.UserAgent,
		&rec.LoginTime, &rec.LogoutTime, &totalSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.TotalTime = time.Duration(totalSeconds) * time.Second
	return &rec, nil
}

func (s *SessionStore) scanAll(rows pgx.Rows) ([]*session.Record, error) {
	var records []*session.Record
	for rows.Next() {
		var (
			rec          session.Record
			totalSeconds int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.IPAddress, &rec.UserAgent,
			&rec.LoginTime, &rec.LogoutTime, &totalSeconds,
		); err != nil {
			return nil, err
		}
		rec.TotalTime = time.Duration(totalSeconds) * time.Second
		records = append(records, &rec)
	}
	return records, rows.Err()
}
