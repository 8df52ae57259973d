package pollguard

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Observe(ctx context.Context, deviceCode string, now time.Time, window time.Duration) (time.Time, int64, error) {
	return time.Time{}, 0, errors.New("store down")
}

func (failingStore) CheckHealth(ctx context.Context) error {
	return errors.New("store down")
}

func newTestGuard(t *testing.T, minInterval time.Duration, maxPerMinute int) (*Guard, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(store.Close)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := New(store, minInterval, maxPerMinute, WithClock(func() time.Time { return now }))
	return guard, &now
}

func TestAllowEnforcesMinInterval(t *testing.T) {
	guard, now := newTestGuard(t, 5*time.Second, 100)
	ctx := context.Background()

	allowed, err := guard.Allow(ctx, "device-1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("first poll must be allowed")
	}

	*now = now.Add(2 * time.Second)
	if allowed, _ := guard.Allow(ctx, "device-1"); allowed {
		t.Error("poll inside the minimum interval must be rejected")
	}

	*now = now.Add(5 * time.Second)
	if allowed, _ := guard.Allow(ctx, "device-1"); !allowed {
		t.Error("poll after the minimum interval must be allowed")
	}
}

func TestAllowIsPerDeviceCode(t *testing.T) {
	guard, now := newTestGuard(t, 5*time.Second, 100)
	ctx := context.Background()

	if allowed, _ := guard.Allow(ctx, "device-1"); !allowed {
		t.Fatal("first poll must be allowed")
	}
	*now = now.Add(time.Second)
	if allowed, _ := guard.Allow(ctx, "device-2"); !allowed {
		t.Error("another device code has its own budget")
	}
}

func TestAllowEnforcesPerMinuteBudget(t *testing.T) {
	guard, now := newTestGuard(t, time.Second, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := guard.Allow(ctx, "device-1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("poll %d should fit the budget", i+1)
		}
		*now = now.Add(2 * time.Second)
	}

	if allowed, _ := guard.Allow(ctx, "device-1"); allowed {
		t.Error("poll over the per-minute budget must be rejected")
	}

	// A fresh window resets the budget.
	*now = now.Add(time.Minute)
	if allowed, _ := guard.Allow(ctx, "device-1"); !allowed {
		t.Error("budget must reset after the window passes")
	}
}

func TestAllowSurfacesStoreErrors(t *testing.T) {
	guard := New(failingStore{}, time.Second, 3)
	if _, err := guard.Allow(context.Background(), "device-1"); err == nil {
		t.Error("expected store error to propagate")
	}
	if err := guard.CheckHealth(context.Background()); err == nil {
		t.Error("expected health check to fail")
	}
}
