// Package pollguard enforces token-endpoint polling limits per RFC 8628
// section 3.5: a minimum interval between polls for one device code plus a
// rolling per-minute budget. Clients that poll too fast get the slow_down
// treatment at the HTTP layer.
package pollguard

import (
	"context"
	"time"
)

const (
	// DefaultMinInterval is the smallest allowed gap between two polls for
	// the same device code.
	DefaultMinInterval = 5 * time.Second

	// DefaultMaxPerMinute bounds polls per device code per minute.
	DefaultMaxPerMinute = 12

	countWindow = time.Minute
)

// Store tracks poll timestamps and windowed counts per device code.
type Store interface {
	// Observe records a poll at now and returns the previous poll time
	// (zero when first) and the poll count within the window including
	// this one.
	Observe(ctx context.Context, deviceCode string, now time.Time, window time.Duration) (last time.Time, count int64, err error)

	// CheckHealth verifies the backing store is reachable.
	CheckHealth(ctx context.Context) error
}

// Guard applies the polling policy over a Store.
type Guard struct {
	store        Store
	minInterval  time.Duration
	maxPerMinute int
	clock        func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(g *Guard) { g.clock = fn }
}

// New creates a guard. Non-positive limits fall back to the defaults.
func New(store Store, minInterval time.Duration, maxPerMinute int, opts ...Option) *Guard {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxPerMinute
	}
	g := &Guard{
		store:        store,
		minInterval:  minInterval,
		maxPerMinute: maxPerMinute,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow records a poll attempt and reports whether it is within policy.
// Store failures are returned so the caller can decide between failing
// open and rejecting.
func (g *Guard) Allow(ctx context.Context, deviceCode string) (bool, error) {
	now := g.clock()
	last, count, err := g.store.Observe(ctx, deviceCode, now, countWindow)
	if err != nil {
		return false, err
	}
	if !last.IsZero() && now.Sub(last) < g.minInterval {
		return false, nil
	}
	if count > int64(g.maxPerMinute) {
		return false, nil
	}
	return true, nil
}

// CheckHealth verifies the guard's store.
func (g *Guard) CheckHealth(ctx context.Context) error {
	return g.store.CheckHealth(ctx)
}
