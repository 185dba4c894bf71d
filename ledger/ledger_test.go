package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb), mr
}

func TestIssueAndCheck(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-1", "u1", time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := store.Check(ctx, "jti-1"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	rec, err := store.Get(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.UserID != "u1" || rec.IsRevoked {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCheckUnknownJTI(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Check(context.Background(), "never-issued"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIssueRejectsNonPositiveTTL(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Issue(context.Background(), "jti-1", "u1", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestRevokeClassifiesCheck(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-1", "u1", time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Revoke(ctx, "jti-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if err := store.Check(ctx, "jti-1"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestRevokeMissingIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Revoke(context.Background(), "never-issued"); err != nil {
		t.Fatalf("expected nil for missing record, got %v", err)
	}
}

func TestRevokePreservesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-1", "u1", time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Revoke(ctx, "jti-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	ttl := mr.TTL("refresh_token:jti-1")
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected remaining ttl within the hour, got %v", ttl)
	}
}

func TestRotateConcurrentHasSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-parent", "u1", time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Rotate(ctx, fmt.Sprintf("jti-child-%d", i), "u1", time.Hour, "jti-parent")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			if err := store.Check(ctx, fmt.Sprintf("jti-child-%d", i)); err != nil {
				t.Fatalf("winning child %d not valid: %v", i, err)
			}
		case errors.Is(err, ErrRevoked):
			// losers see the parent already retired
		default:
			t.Fatalf("rotation %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning rotation, got %d", winners)
	}

	if err := store.Check(ctx, "jti-parent"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("parent must be revoked after rotation, got %v", err)
	}
}

func TestRotateRetiresOldAndIssuesNew(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-old", "u1", time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := store.Rotate(ctx, "jti-new", "u1", time.Hour, "jti-old"); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	if err := store.Check(ctx, "jti-old"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("old jti: expected ErrRevoked, got %v", err)
	}
	if err := store.Check(ctx, "jti-new"); err != nil {
		t.Fatalf("new jti: expected usable, got %v", err)
	}
}

func TestRotateRejectsReuse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-old", "u1", time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Rotate(ctx, "jti-new", "u1", time.Hour, "jti-old"); err != nil {
		t.Fatalf("first Rotate failed: %v", err)
	}

	// Replaying the already-rotated jti must fail and must not mint.
	err := store.Rotate(ctx, "jti-new-2", "u1", time.Hour, "jti-old")
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked on reuse, got %v", err)
	}
	if err := store.Check(ctx, "jti-new-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reuse must not issue a record, got %v", err)
	}
}

func TestRotateUnknownOldJTI(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Rotate(context.Background(), "jti-new", "u1", time.Hour, "never-issued")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateCorruptRecord(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Set("refresh_token:jti-bad", "{not json")

	err := store.Rotate(context.Background(), "jti-new", "u1", time.Hour, "jti-bad")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestSessionBlacklist(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	listed, err := store.IsSessionBlacklisted(ctx, "s1")
	if err != nil {
		t.Fatalf("IsSessionBlacklisted failed: %v", err)
	}
	if listed {
		t.Fatal("fresh session must not be blacklisted")
	}

	if err := store.BlacklistSession(ctx, "s1", time.Hour); err != nil {
		t.Fatalf("BlacklistSession failed: %v", err)
	}

	listed, err = store.IsSessionBlacklisted(ctx, "s1")
	if err != nil {
		t.Fatalf("IsSessionBlacklisted failed: %v", err)
	}
	if !listed {
		t.Fatal("expected session to be blacklisted")
	}
}

func TestExpiredRecordEvicted(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Issue(ctx, "jti-1", "u1", time.Second); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if err := store.Check(ctx, "jti-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after eviction, got %v", err)
	}
}
