package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credential-control-plane/internal/actiontoken/domain"
	"credential-control-plane/internal/actiontoken/repository"
)

type memRepo struct {
	mu sync.Mutex
	m  map[string]*domain.ActionToken
}

func newMemRepo() *memRepo {
	return &memRepo{m: make(map[string]*domain.ActionToken)}
}

func (r *memRepo) Create(ctx context.Context, t *domain.ActionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[t.TokenHash]; ok {
		return errors.New("duplicate token hash")
	}
	cp := *t
	r.m[t.TokenHash] = &cp
	return nil
}

func (r *memRepo) InvalidateUnused(ctx context.Context, userID string, kind domain.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.m {
		if t.UserID == userID && t.Kind == kind && !t.IsUsed {
			t.IsUsed = true
		}
	}
	return nil
}

func (r *memRepo) Consume(ctx context.Context, tokenHash string, kind domain.Kind, now time.Time) (*domain.ActionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[tokenHash]
	if !ok || t.Kind != kind || t.IsUsed || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	t.IsUsed = true
	cp := *t
	return &cp, nil
}

func (r *memRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for h, t := range r.m {
		if !t.ExpiresAt.After(now) {
			delete(r.m, h)
			n++
		}
	}
	return n, nil
}

type memStorage struct {
	txMu sync.Mutex
	repo *memRepo
}

func newMemStorage() *memStorage {
	return &memStorage{repo: newMemRepo()}
}

func (m *memStorage) Repo() repository.Repository { return m.repo }

func (m *memStorage) InTx(ctx context.Context, fn func(repository.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m.repo)
}

func newTestStore() (*Store, *memStorage) {
	storage := newMemStorage()
	return NewStore(storage, 24*time.Hour, time.Hour), storage
}

func TestIssueAndConsume(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	raw, issued, err := store.Issue(ctx, "u1", domain.KindEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if raw == "" || issued.TokenHash == raw {
		t.Fatal("raw value must be non-empty and never stored verbatim")
	}
	got, err := store.Consume(ctx, raw, domain.KindEmailVerification)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.UserID != "u1" || got.ID != issued.ID {
		t.Errorf("consumed %+v, want token %q for u1", got, issued.ID)
	}
}

func TestConsume_SingleUse(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	raw, _, err := store.Issue(ctx, "u1", domain.KindPasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := store.Consume(ctx, raw, domain.KindPasswordReset); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := store.Consume(ctx, raw, domain.KindPasswordReset); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("second consume: want ErrInvalidOrExpired, got %v", err)
	}
}

// Many concurrent redemptions of one token must produce exactly one success.
func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	raw, _, err := store.Issue(ctx, "u1", domain.KindPasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	var successMu sync.Mutex
	successes := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, raw, domain.KindPasswordReset); err == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("%d consumers succeeded, want exactly 1", successes)
	}
}

// A newly issued token supersedes the previous one of the same kind, even
// though the old token's expiry has not passed.
func TestIssue_InvalidatesPrevious(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	raw1, _, err := store.Issue(ctx, "u1", domain.KindEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	raw2, _, err := store.Issue(ctx, "u1", domain.KindEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := store.Consume(ctx, raw1, domain.KindEmailVerification); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("superseded token: want ErrInvalidOrExpired, got %v", err)
	}
	if _, err := store.Consume(ctx, raw2, domain.KindEmailVerification); err != nil {
		t.Fatalf("latest token should consume: %v", err)
	}
}

// Reissuing one kind leaves the user's tokens of the other kind alone.
func TestIssue_KindsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	resetRaw, _, err := store.Issue(ctx, "u1", domain.KindPasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := store.Issue(ctx, "u1", domain.KindEmailVerification); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := store.Consume(ctx, resetRaw, domain.KindPasswordReset); err != nil {
		t.Fatalf("reset token should survive a verification reissue: %v", err)
	}
}

func TestConsume_WrongKind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	raw, _, err := store.Issue(ctx, "u1", domain.KindEmailVerification)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := store.Consume(ctx, raw, domain.KindPasswordReset); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("cross-kind consume: want ErrInvalidOrExpired, got %v", err)
	}
	// The failed attempt must not burn the token for its real kind.
	if _, err := store.Consume(ctx, raw, domain.KindEmailVerification); err != nil {
		t.Fatalf("token should remain usable for its own kind: %v", err)
	}
}

func TestConsume_Expired(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	raw, _, err := store.Issue(ctx, "u1", domain.KindPasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	store.nowF = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, err := store.Consume(ctx, raw, domain.KindPasswordReset); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("expired token: want ErrInvalidOrExpired, got %v", err)
	}
}

func TestConsume_Unknown(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()
	if _, err := store.Consume(ctx, "never-issued", domain.KindPasswordReset); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("want ErrInvalidOrExpired, got %v", err)
	}
}

func TestIssue_UnknownKind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()
	if _, _, err := store.Issue(ctx, "u1", domain.Kind("banana")); err == nil {
		t.Fatal("want error for unknown kind")
	}
}
