package authcore

import (
	"context"
	"errors"
	"log"
	"time"
)

// CreateAccount registers a new principal. The password is hashed
// before the provider sees it and the first expiry date is stamped from
// the configured window. Identifier collisions surface as
// ErrAccountExists regardless of which column collided.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if e == nil || e.passwordHash == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if req.Username == "" {
		e.emitAudit(ctx, auditEventAccountDuplicate, false, "", "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "empty_username",
			}
		})
		return nil, ErrPasswordPolicy
	}
	if req.Password == "" {
		e.emitAudit(ctx, auditEventAccountDuplicate, false, "", "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"identifier": req.Username,
				"reason":     "empty_password",
			}
		})
		return nil, ErrPasswordPolicy
	}

	passwordHash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	expiresAt := time.Time{}
	if e.config.Password.ExpiryWindow > 0 {
		expiresAt = time.Now().Add(e.config.Password.ExpiryWindow)
	}

	created, err := e.userProvider.Create(ctx, CreatePrincipalInput{
		Username:          req.Username,
		Email:             req.Email,
		Phone:             req.Phone,
		PasswordHash:      passwordHash,
		PasswordExpiresAt: expiresAt,
		MaxSessions:       req.MaxSessions,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountDuplicate)
			e.emitAudit(ctx, auditEventAccountDuplicate, false, "", "", ErrAccountExists, func() map[string]string {
				return map[string]string{
					"identifier": req.Username,
				}
			})
			return nil, ErrAccountExists
		}
		return nil, wrapStorage(err)
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": req.Username,
		}
	})

	return &CreateAccountResult{UserID: created.ID}, nil
}

// LockAccount applies an administrative lock until the given time. A
// zero till locks indefinitely from the engine's point of view only if
// the provider treats it that way; callers normally pass an explicit
// deadline.
func (e *Engine) LockAccount(ctx context.Context, userID string, till time.Time) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	if _, err := e.userProvider.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := e.userProvider.SetLockState(ctx, userID, true, till); err != nil {
		return wrapStorage(err)
	}

	e.emitAudit(ctx, auditEventAccountLocked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"locked_till": till.UTC().Format(time.RFC3339),
		}
	})
	return nil
}

// UnlockAccount clears a lock and resets the failure counter, so the
// principal gets a fresh lockout window.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	if _, err := e.userProvider.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := e.userProvider.SetLockState(ctx, userID, false, time.Time{}); err != nil {
		return wrapStorage(err)
	}

	if e.lockout != nil {
		if err := e.lockout.Reset(ctx, userID); err != nil {
			log.Print("authcore: lockout counter reset failed on unlock")
		}
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, userID, "", nil, nil)
	return nil
}
