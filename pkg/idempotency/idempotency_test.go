package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// fakeStore is an in-memory Store of the same shape as the dispatcher tests'
// own fake; exercised here directly to pin down the check-then-set contract
// the real RedisStore must honor.
type fakeStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]struct{})}
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[key]
	return ok, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[key] = struct{}{}
	return nil
}

func TestFakeStore_SequentialCheckThenSet(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()

	key := "idempotency:m1"
	ok, err := s.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("expected key absent before first processing, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, key, DefaultTTL); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err = s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected key present after commit, got ok=%v err=%v", ok, err)
	}
}

var _ Store = (*fakeStore)(nil)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStore(mr.Addr(), "", 0)
}

func TestRedisStore_Claim_FirstCallClaims(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)
	defer s.Close()

	claimed, err := s.Claim(ctx, "idempotency:m1", DefaultTTL)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first Claim on an unseen key to succeed")
	}

	exists, err := s.Exists(ctx, "idempotency:m1")
	if err != nil || !exists {
		t.Fatalf("expected key to exist after Claim, got exists=%v err=%v", exists, err)
	}
}

func TestRedisStore_Claim_SecondCallLoses(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)
	defer s.Close()

	key := "idempotency:m2"
	if claimed, err := s.Claim(ctx, key, DefaultTTL); err != nil || !claimed {
		t.Fatalf("expected first Claim to succeed, got claimed=%v err=%v", claimed, err)
	}

	claimed, err := s.Claim(ctx, key, DefaultTTL)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected second Claim on an already-claimed key to fail")
	}
}
