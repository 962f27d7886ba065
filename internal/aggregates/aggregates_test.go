package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/cache"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
)

type fakeQuerier struct {
	calls     int
	velocity  int64
	lastSince time.Time
	err       error
}

func (f *fakeQuerier) AggregateContext(_ context.Context, userID, _, _ string, _ domain.TransactionType) (*domain.AggregateContext, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.AggregateContext{
		UserTxnCount:    42,
		UserTotalAmount: 100000,
	}, nil
}

func (f *fakeQuerier) CountUserTransactions(_ context.Context, _ string, since time.Time) (int64, error) {
	f.lastSince = since
	return f.velocity, f.err
}

func TestContextCaching(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuerier{}
	svc := NewService(repo, cache.NewLRUCache(10), nil)

	agg, err := svc.Context(ctx, "user-001", "Lilongwe", "TNM", domain.TypeCashOut)
	if err != nil {
		t.Fatalf("Context failed: %v", err)
	}
	if agg.UserTxnCount != 42 {
		t.Errorf("expected txn count 42, got %d", agg.UserTxnCount)
	}
	if repo.calls != 1 {
		t.Fatalf("expected 1 repo call, got %d", repo.calls)
	}

	// Same fingerprint served from cache.
	if _, err := svc.Context(ctx, "user-001", "Lilongwe", "TNM", domain.TypeCashOut); err != nil {
		t.Fatalf("cached Context failed: %v", err)
	}
	if repo.calls != 1 {
		t.Errorf("expected cache hit, repo called %d times", repo.calls)
	}

	// Different channel misses.
	if _, err := svc.Context(ctx, "user-001", "Lilongwe", "Airtel", domain.TypeCashOut); err != nil {
		t.Fatalf("Context failed: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("expected 2 repo calls after new fingerprint, got %d", repo.calls)
	}
}

func TestContextStaleness(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuerier{}

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, cache.NewLRUCache(10), nil,
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }))

	if _, err := svc.Context(ctx, "user-001", "Lilongwe", "TNM", domain.TypeCashIn); err != nil {
		t.Fatalf("Context failed: %v", err)
	}

	// Within TTL: still cached.
	now = now.Add(30 * time.Second)
	if _, err := svc.Context(ctx, "user-001", "Lilongwe", "TNM", domain.TypeCashIn); err != nil {
		t.Fatalf("Context failed: %v", err)
	}
	if repo.calls != 1 {
		t.Errorf("expected cache hit inside TTL, repo called %d times", repo.calls)
	}

	// Past TTL: recomputed.
	now = now.Add(2 * time.Minute)
	if _, err := svc.Context(ctx, "user-001", "Lilongwe", "TNM", domain.TypeCashIn); err != nil {
		t.Fatalf("Context failed: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("expected refetch after TTL, repo called %d times", repo.calls)
	}
}

func TestContextWithoutCache(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuerier{}
	svc := NewService(repo, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.Context(ctx, "user-001", "Zomba", "TNM", domain.TypeP2PTransfer); err != nil {
			t.Fatalf("Context failed: %v", err)
		}
	}
	if repo.calls != 3 {
		t.Errorf("expected every call to hit the repo, got %d calls", repo.calls)
	}
}

func TestContextRepoError(t *testing.T) {
	repo := &fakeQuerier{err: errors.New("db down")}
	svc := NewService(repo, nil, nil)

	if _, err := svc.Context(context.Background(), "user-001", "Zomba", "TNM", domain.TypeCashIn); err == nil {
		t.Fatal("expected error when repository fails")
	}
}

func TestVelocityCount(t *testing.T) {
	repo := &fakeQuerier{velocity: 17}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, nil, nil, WithClock(func() time.Time { return now }))

	count, err := svc.VelocityCount(context.Background(), "user-001", time.Hour)
	if err != nil {
		t.Fatalf("VelocityCount failed: %v", err)
	}
	if count != 17 {
		t.Errorf("expected 17, got %d", count)
	}
	if want := now.Add(-time.Hour); !repo.lastSince.Equal(want) {
		t.Errorf("expected since %v, got %v", want, repo.lastSince)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("user-001", "Lilongwe", "TNM", domain.TypeCashOut)
	b := Fingerprint("user-001", "Lilongwe", "TNM", domain.TypeCashIn)
	c := Fingerprint("user-002", "Lilongwe", "TNM", domain.TypeCashOut)

	if a == b || a == c {
		t.Errorf("fingerprints must differ per channel and user: %q %q %q", a, b, c)
	}
}
