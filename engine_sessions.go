package authcore

import (
	"context"
	"errors"

	"github.com/cliniqa/authcore/session"
)

// Sessions lists a user's audit trail, newest first, capped by the
// configured history limit.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*SessionRecord, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.directory.List(ctx, userID, e.config.Session.HistoryLimit)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return records, nil
}

// LastSession returns the most recent audit record for the user, open
// or closed.
func (e *Engine) LastSession(ctx context.Context, userID string) (*SessionRecord, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.directory.Last(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, wrapStorage(err)
	}
	return rec, nil
}

// Session fetches a single audit record by id.
func (e *Engine) Session(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.directory.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, wrapStorage(err)
	}
	return rec, nil
}
