package pgstore

// Schema is the reference DDL for the two tables the adapters expect.
// Hosts with their own migration tooling can fold it in verbatim.
const Schema = `
CREATE TABLE IF NOT EXISTS auth_principal (
    id                  TEXT PRIMARY KEY,
    username            TEXT NOT NULL UNIQUE,
    email               TEXT UNIQUE,
    phone               TEXT UNIQUE,
    password_hash       TEXT NOT NULL,
    is_locked           BOOLEAN NOT NULL DEFAULT FALSE,
    locked_till         TIMESTAMPTZ,
    password_expires_at TIMESTAMPTZ,
    email_verified      BOOLEAN NOT NULL DEFAULT FALSE,
    phone_verified      BOOLEAN NOT NULL DEFAULT FALSE,
    max_sessions        INTEGER NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS auth_session (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES auth_principal(id),
    ip_address    TEXT NOT NULL DEFAULT '',
    user_agent    TEXT NOT NULL DEFAULT '',
    login_time    TIMESTAMPTZ NOT NULL,
    logout_time   TIMESTAMPTZ,
    total_seconds BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS auth_session_user_login_idx
    ON auth_session (user_id, login_time DESC);
`
