package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshRotatesTokenPair(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rotated, err := h.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if rotated.SessionID != login.SessionID {
		t.Fatal("rotation must stay inside the session")
	}

	if _, err := h.engine.ValidateAccess(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}
}

func TestRefreshReuseDetected(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}

	// Replaying the consumed token is rejected.
	_, err = h.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on reuse, got %v", err)
	}
}

func TestRefreshChainSurvivesMultipleRotations(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		res, err = h.engine.Refresh(ctx, res.RefreshToken)
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i+1, err)
		}
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	h := newTestEngine(t, nil)

	_, err := h.engine.Refresh(context.Background(), "not-a-token")
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Access tokens are signed with the other secret.
	_, err = h.engine.Refresh(ctx, login.AccessToken)
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestValidateAccessRejectsGarbage(t *testing.T) {
	h := newTestEngine(t, nil)

	_, err := h.engine.ValidateAccess(context.Background(), "not-a-token")
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := h.engine.Logout(ctx, login.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// The access token still parses but the session is blacklisted.
	if _, err := h.engine.ValidateAccess(ctx, login.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	// The refresh chain is dead too.
	if _, err := h.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on refresh, got %v", err)
	}

	rec, err := h.engine.Session(ctx, login.SessionID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if rec.Open() {
		t.Fatal("audit record must be closed after logout")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := h.engine.Logout(ctx, login.AccessToken); err != nil {
		t.Fatalf("first Logout failed: %v", err)
	}
	if err := h.engine.Logout(ctx, login.AccessToken); err != nil {
		t.Fatalf("repeat Logout failed: %v", err)
	}
}

func TestLogoutLeavesOtherSessionsAlive(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	second, err := h.engine.Login(ctx, testUsername, testPassword)
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}

	// The cached pointer now names the second session. Logging the
	// first session out must not touch the second session's chain.
	if err := h.engine.Logout(ctx, first.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	rotated, err := h.engine.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("surviving session's Refresh failed: %v", err)
	}
	if rotated.SessionID != second.SessionID {
		t.Fatal("rotation must stay inside the surviving session")
	}
	if _, err := h.engine.ValidateAccess(ctx, second.AccessToken); err != nil {
		t.Fatalf("surviving session's access token rejected: %v", err)
	}

	// The logged-out session stays dead.
	if _, err := h.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for the logged-out session, got %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, first.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for the logged-out access token, got %v", err)
	}
}

func TestLogoutAllClosesEverySession(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	var logins []*LoginResult
	for i := 0; i < 3; i++ {
		res, err := h.engine.Login(ctx, testUsername, testPassword)
		if err != nil {
			t.Fatalf("login %d failed: %v", i+1, err)
		}
		logins = append(logins, res)
	}

	if err := h.engine.LogoutAll(ctx, h.userID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	for i, res := range logins {
		if _, err := h.engine.ValidateAccess(ctx, res.AccessToken); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("session %d: expected ErrTokenRevoked, got %v", i+1, err)
		}
	}

	recs, err := h.engine.Sessions(ctx, h.userID)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	for _, rec := range recs {
		if rec.Open() {
			t.Fatalf("session %s still open after LogoutAll", rec.ID)
		}
	}

	// Repeating with nothing open is a no-op.
	if err := h.engine.LogoutAll(ctx, h.userID); err != nil {
		t.Fatalf("repeat LogoutAll failed: %v", err)
	}
}

func TestSessionHistoryNewestFirst(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.engine.Login(ctx, testUsername, testPassword); err != nil {
			t.Fatalf("login %d failed: %v", i+1, err)
		}
	}

	recs, err := h.engine.Sessions(ctx, h.userID)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].LoginTime.After(recs[i-1].LoginTime) {
			t.Fatal("history not ordered newest first")
		}
	}

	last, err := h.engine.LastSession(ctx, h.userID)
	if err != nil {
		t.Fatalf("LastSession failed: %v", err)
	}
	if last.ID != recs[0].ID {
		t.Fatal("LastSession disagrees with history head")
	}
}

func TestLastSessionUnknownUser(t *testing.T) {
	h := newTestEngine(t, nil)

	_, err := h.engine.LastSession(context.Background(), "ghost")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
