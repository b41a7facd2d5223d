package guard

import (
	"context"
	"sync"
	"time"

	"github.com/stakehouse/platform/internal/domain"
)

// IdempotencyGuard deduplicates requests by idempotency key. Keys are
// forgotten after ttl so the map stays bounded.
type IdempotencyGuard struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	clock Clock
}

// NewIdempotencyGuard creates a new in-memory idempotency guard. A zero ttl
// keeps keys forever.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// WithClock replaces the time source.
func (ig *IdempotencyGuard) WithClock(c Clock) *IdempotencyGuard {
	ig.clock = c
	return ig
}

// Check returns whether the given key has already been processed.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.clock.now()
	if at, ok := ig.seen[key]; ok && (ig.ttl <= 0 || now.Sub(at) < ig.ttl) {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate request: idempotency key already processed",
			Guard:   "idempotency",
		}
	}

	ig.seen[key] = now
	ig.sweep(now)
	return domain.GuardResult{Allowed: true}
}

// Remove deletes a key so a failed request can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

func (ig *IdempotencyGuard) sweep(now time.Time) {
	if ig.ttl <= 0 {
		return
	}
	for k, at := range ig.seen {
		if now.Sub(at) >= ig.ttl {
			delete(ig.seen, k)
		}
	}
}
