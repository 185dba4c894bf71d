package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniqa/authcore/internal/limiters"
	"github.com/cliniqa/authcore/jwt"
	"github.com/cliniqa/authcore/ledger"
	"github.com/cliniqa/authcore/notify"
	"github.com/cliniqa/authcore/password"
	"github.com/cliniqa/authcore/session"
)

// Engine is the authentication core. Construct it through Builder; a
// zero-value Engine is not usable. All methods are safe for concurrent
// use once built.
type Engine struct {
	config       Config
	userProvider UserProvider
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	ledger       *ledger.Store
	directory    *session.Directory
	otpStore     *otpStore
	otpLimiter   *limiters.OTPLimiter
	lockout      *limiters.LockoutLimiter
	emailSender  notify.EmailSender
	smsSender    notify.SMSSender
	audit        *auditDispatcher
	metrics      *Metrics
	blacklistTTL time.Duration
}

// Close flushes and stops the async audit dispatcher. Redis connections
// are owned by the caller and are not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms. Safe to call while the engine is serving.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// resolvePrincipal tries username, then email, then phone. First match
// wins. Any hit on a later lookup after an earlier miss is still a
// single principal; the order is fixed so behavior is deterministic
// when identifiers collide across columns.
func (e *Engine) resolvePrincipal(ctx context.Context, identifier string) (*Principal, error) {
	user, err := e.userProvider.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user, err = e.userProvider.GetByEmail(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	return e.userProvider.GetByPhone(ctx, identifier)
}

// Login authenticates a password credential and opens a session.
// Identifier may be a username, email, or phone number.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}
	if identifier == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.resolvePrincipal(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "principal_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if user.EffectivelyLocked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		if lockErr := e.recordLoginFailure(ctx, user); lockErr != nil {
			return nil, lockErr
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if user.PasswordExpired(now) {
		e.metricInc(MetricLoginPasswordExpired)
		e.emitAudit(ctx, auditEventLoginPasswordExpired, false, user.ID, "", ErrPasswordExpired, nil)
		return nil, ErrPasswordExpired
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(pass); err == nil {
				// Rehash update is best-effort and must not block login.
				if err := e.userProvider.UpdatePasswordHash(ctx, user.ID, upgradedHash, user.PasswordExpiresAt); err != nil {
					log.Print("authcore: password hash upgrade update failed")
				}
			} else {
				log.Print("authcore: password hash upgrade generation failed")
			}
		}
	}
	pass = ""

	if e.lockout != nil {
		if err := e.lockout.Reset(ctx, user.ID); err != nil {
			log.Print("authcore: lockout counter reset failed")
		}
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "session_establish_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})
	return result, nil
}

// LoginWithOTP authenticates with a previously sent single-use code
// under the login purpose. The password and its expiry are not
// consulted; the lock state still is.
func (e *Engine) LoginWithOTP(ctx context.Context, identifier, code string) (*LoginResult, error) {
	if e == nil || e.otpStore == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.resolvePrincipal(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		e.metricInc(MetricOTPLoginFailure)
		e.emitAudit(ctx, auditEventOTPLoginFailure, false, "", "", ErrInvalidOTP, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "principal_not_found",
			}
		})
		return nil, ErrInvalidOTP
	}

	// Lock is checked before the code is consumed: a locked attempt
	// leaves the stored code intact, so an unlock within the code's TTL
	// does not force a resend.
	if user.EffectivelyLocked(time.Now()) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	if _, err := e.otpStore.Consume(ctx, OTPLogin, identifier, code); err != nil {
		switch {
		case errors.Is(err, errOTPNotFound), errors.Is(err, errOTPMismatch):
			e.metricInc(MetricOTPLoginFailure)
			e.emitAudit(ctx, auditEventOTPLoginFailure, false, user.ID, "", ErrInvalidOTP, nil)
			return nil, ErrInvalidOTP
		default:
			return nil, wrapStorage(err)
		}
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		e.metricInc(MetricOTPLoginFailure)
		e.emitAudit(ctx, auditEventOTPLoginFailure, false, user.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricOTPLoginSuccess)
	e.emitAudit(ctx, auditEventOTPLoginSuccess, true, user.ID, result.SessionID, nil, nil)
	return result, nil
}

// establishSession enforces the open-session allowance, writes the
// durable audit record, mints the token pair, records the refresh jti
// in the ledger, and replaces the cached pointer. The audit record is
// created before the tokens so the sid claim always refers to a row
// that exists.
func (e *Engine) establishSession(ctx context.Context, user *Principal) (*LoginResult, error) {
	if user.MaxSessions > 0 {
		open, err := e.directory.OpenCount(ctx, user.ID)
		if err != nil {
			return nil, wrapStorage(err)
		}
		if open >= user.MaxSessions {
			e.emitAudit(ctx, auditEventSessionLimitExceeded, false, user.ID, "", ErrSessionLimitExceeded, nil)
			return nil, ErrSessionLimitExceeded
		}
	}

	now := time.Now()
	rec := &session.Record{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		LoginTime: now,
	}
	if err := e.directory.Open(ctx, rec); err != nil {
		return nil, wrapStorage(err)
	}
	e.metricInc(MetricSessionCreated)

	access, err := e.jwtManager.CreateAccess(user.Username, user.ID, rec.ID)
	if err != nil {
		return nil, err
	}

	jti := uuid.NewString()
	refresh, err := e.jwtManager.CreateRefresh(user.Username, user.ID, rec.ID, jti)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.Issue(ctx, jti, user.ID, e.jwtManager.RefreshTTL()); err != nil {
		return nil, wrapStorage(err)
	}

	// Last login wins: the pointer always references the newest chain.
	if err := e.directory.SavePointer(ctx, user.ID, session.Pointer{
		RefreshToken: refresh,
		Username:     user.Username,
		CreatedAt:    now.Unix(),
	}); err != nil {
		return nil, wrapStorage(err)
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    rec.ID,
		UserID:       user.ID,
	}, nil
}

// recordLoginFailure bumps the Redis failure counter and, at the
// threshold, hard-locks the principal through the provider. The
// returned error is non-nil only when the lock itself was applied or
// the backend failed; an ordinary sub-threshold failure returns nil so
// the caller reports ErrInvalidCredentials.
func (e *Engine) recordLoginFailure(ctx context.Context, user *Principal) error {
	if e.lockout == nil || !e.config.Lockout.Enabled {
		return nil
	}

	crossed, err := e.lockout.RecordFailure(ctx, user.ID)
	if err != nil {
		log.Print("authcore: lockout failure tracking unavailable")
		return nil
	}
	if !crossed {
		return nil
	}

	lockedTill := time.Now().Add(e.config.Lockout.Duration)
	if err := e.userProvider.SetLockState(ctx, user.ID, true, lockedTill); err != nil {
		return wrapStorage(err)
	}

	e.metricInc(MetricAccountAutoLocked)
	e.emitAudit(ctx, auditEventAccountAutoLocked, false, user.ID, "", ErrAccountLocked, func() map[string]string {
		return map[string]string{
			"locked_till": lockedTill.UTC().Format(time.RFC3339),
		}
	})
	return ErrAccountLocked
}

// Refresh rotates a refresh token. The old jti is atomically revoked
// and the new one recorded; a revoked, unknown, or expired jti rejects
// the rotation and no access token is issued.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		mapped := mapTokenError(err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "parse_failed",
			}
		})
		return nil, mapped
	}

	blacklisted, err := e.ledger.IsSessionBlacklisted(ctx, claims.SID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, wrapStorage(err)
	}
	if blacklisted {
		e.metricInc(MetricRefreshRevokedRejected)
		e.emitAudit(ctx, auditEventRefreshRevoked, false, claims.UID, claims.SID, ErrTokenRevoked, func() map[string]string {
			return map[string]string{
				"reason": "session_blacklisted",
			}
		})
		return nil, ErrTokenRevoked
	}

	newJTI := uuid.NewString()
	if err := e.ledger.Rotate(ctx, newJTI, claims.UID, e.jwtManager.RefreshTTL(), claims.ID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrRevoked),
			errors.Is(err, ledger.ErrNotFound),
			errors.Is(err, ledger.ErrExpired):
			e.metricInc(MetricRefreshRevokedRejected)
			e.emitAudit(ctx, auditEventRefreshRevoked, false, claims.UID, claims.SID, ErrTokenRevoked, nil)
			return nil, ErrTokenRevoked
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, claims.SID, ErrStorageFailure, func() map[string]string {
				return map[string]string{
					"reason": "rotate_failed",
				}
			})
			return nil, wrapStorage(err)
		}
	}

	access, err := e.jwtManager.CreateAccess(claims.Subject, claims.UID, claims.SID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	refresh, err := e.jwtManager.CreateRefresh(claims.Subject, claims.UID, claims.SID, newJTI)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	// Pointer update is best-effort; the ledger already holds the truth.
	if err := e.directory.SavePointer(ctx, claims.UID, session.Pointer{
		RefreshToken: refresh,
		Username:     claims.Subject,
		CreatedAt:    time.Now().Unix(),
	}); err != nil {
		log.Print("authcore: session pointer update failed on refresh")
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.UID, claims.SID, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    claims.SID,
		UserID:       claims.UID,
	}, nil
}

// ValidateAccess checks signature, expiry, and the session blacklist.
// It never touches the durable audit store.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, mapTokenError(err)
	}

	blacklisted, err := e.ledger.IsSessionBlacklisted(ctx, claims.SID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if blacklisted {
		return nil, ErrTokenRevoked
	}

	return &AuthResult{
		UserID:    claims.UID,
		Username:  claims.Subject,
		SessionID: claims.SID,
	}, nil
}

// Logout ends the session named by a valid access token: the audit
// record is closed and the session id blacklisted. The cached pointer
// and its refresh chain are revoked only when the pointer still names
// this session; a newer login owns the pointer and keeps its tokens.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		mapped := mapTokenError(err)
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", mapped, nil)
		return mapped
	}

	closed, err := e.directory.Close(ctx, claims.SID, time.Now())
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		e.emitAudit(ctx, auditEventLogoutSession, false, claims.UID, claims.SID, ErrStorageFailure, nil)
		return wrapStorage(err)
	}
	if closed {
		e.metricInc(MetricSessionClosed)
	}

	if err := e.ledger.BlacklistSession(ctx, claims.SID, e.blacklistTTL); err != nil {
		return wrapStorage(err)
	}
	if err := e.revokeSessionPointer(ctx, claims.UID, claims.SID); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.UID, claims.SID, nil, nil)
	return nil
}

// LogoutAll force-closes every open session for a user. Idempotent;
// running it twice closes nothing new and is not an error.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	now := time.Now()
	closed, err := e.directory.CloseAll(ctx, userID, now)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", ErrStorageFailure, nil)
		return wrapStorage(err)
	}

	for _, sid := range closed {
		e.metricInc(MetricSessionClosed)
		if err := e.ledger.BlacklistSession(ctx, sid, e.blacklistTTL); err != nil {
			return wrapStorage(err)
		}
	}

	if err := e.revokePointerChain(ctx, userID); err != nil {
		return err
	}
	if err := e.directory.DeletePointer(ctx, userID); err != nil {
		return wrapStorage(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"closed_sessions": strings.Join(closed, ","),
		}
	})
	return nil
}

// revokeSessionPointer revokes the cached pointer's refresh chain and
// removes the pointer, but only when the pointer belongs to the given
// session. The pointer is last-login-wins, so after a newer login it
// names a different live session whose tokens must stay valid.
func (e *Engine) revokeSessionPointer(ctx context.Context, userID, sid string) error {
	ptr, err := e.directory.GetPointer(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return wrapStorage(err)
	}

	claims, err := e.jwtManager.ParseRefresh(ptr.RefreshToken)
	if err != nil {
		// An expired or garbled cached token has nothing left to revoke.
		return nil
	}
	if claims.SID != sid {
		return nil
	}

	if err := e.ledger.Revoke(ctx, claims.ID); err != nil {
		return wrapStorage(err)
	}
	if err := e.directory.DeletePointer(ctx, userID); err != nil {
		return wrapStorage(err)
	}
	return nil
}

// revokePointerChain revokes the refresh jti referenced by the user's
// cached pointer, if any. A missing pointer is not an error; the chain
// may already be gone or never cached.
func (e *Engine) revokePointerChain(ctx context.Context, userID string) error {
	ptr, err := e.directory.GetPointer(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return wrapStorage(err)
	}

	claims, err := e.jwtManager.ParseRefresh(ptr.RefreshToken)
	if err != nil {
		// An expired or garbled cached token has nothing left to revoke.
		return nil
	}

	if err := e.ledger.Revoke(ctx, claims.ID); err != nil {
		return wrapStorage(err)
	}
	return nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrStorageFailure, err)
}
