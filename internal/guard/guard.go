// Package guard holds request guards consulted before work is admitted:
// rate limits, idempotency keys and circuit breakers for outbound sinks.
package guard

import (
	"context"
	"time"

	"github.com/stakehouse/platform/internal/domain"
)

// Guard decides whether a keyed request may proceed.
type Guard interface {
	Check(ctx context.Context, key string) domain.GuardResult
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
