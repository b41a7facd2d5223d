// Package service runs the platform's operations. Each operation is one
// unit of work on a repository.TxRunner: it updates the record that guards
// the operation (room, event, request or account) before posting ledger
// deltas, so concurrent attempts collide on that record's version and only
// one of them commits.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/policy"
)

// Page size bounds shared by the list operations.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Policy bundles the rule settings the services enforce.
type Policy struct {
	Limits   policy.StakeLimits
	Routing  policy.CurrencyRouting
	Referral domain.ReferralSettings
}

// DefaultPolicy returns the settings used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Limits:  policy.DefaultStakeLimits(),
		Routing: policy.DefaultCurrencyRouting(),
		Referral: domain.ReferralSettings{
			Enabled:        true,
			Bonus:          100,
			Currency:       domain.CurrencyPoints,
			MaxPerReferrer: 10,
		},
	}
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// fail passes domain errors and cancellation through and wraps anything else
// as an internal error.
func fail(msg string, err error) error {
	if err == nil {
		return nil
	}
	if domain.CodeOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrInternal(msg, err)
}
