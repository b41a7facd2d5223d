package policy

import (
	"testing"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateStakeLimits(t *testing.T) {
	limits := StakeLimits{MinStake: 10, MaxStake: 1000, MaxRequestAmount: 5000}

	tests := []struct {
		name     string
		amount   int64
		kind     string
		allowed  bool
		breached string
	}{
		{"stake within bounds", 100, KindRoomStake, true, ""},
		{"stake below minimum", 5, KindBetStake, false, "min_stake"},
		{"stake above maximum", 1001, KindRoomStake, false, "max_stake"},
		{"zero amount", 0, KindBetStake, false, "positive_amount"},
		{"request under cap ignores min stake", 5, KindRequest, true, ""},
		{"request over cap", 5001, KindRequest, false, "max_request_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateStakeLimits(limits, tt.amount, tt.kind)
			assert.Equal(t, tt.allowed, got.Allowed)
			assert.Equal(t, tt.breached, got.BreachedLimit)
			if tt.allowed {
				assert.NoError(t, got.Err())
			} else {
				assert.Equal(t, domain.CodeValidation, domain.CodeOf(got.Err()))
			}
		})
	}
}

func TestEvaluateStakeLimits_ZeroMaxStopsAtCeiling(t *testing.T) {
	limits := StakeLimits{MinStake: 1}
	assert.True(t, EvaluateStakeLimits(limits, 1<<40, KindRoomStake).Allowed)
	assert.True(t, EvaluateStakeLimits(limits, domain.MaxAmount, KindBetStake).Allowed)

	over := EvaluateStakeLimits(limits, domain.MaxAmount+1, KindRoomStake)
	assert.False(t, over.Allowed)
	assert.Equal(t, "amount_ceiling", over.BreachedLimit)
	assert.False(t, EvaluateStakeLimits(limits, domain.MaxAmount+1, KindRequest).Allowed)
}

func TestEvaluateStanding(t *testing.T) {
	active := &domain.Account{Status: domain.AccountActive}
	require.NoError(t, EvaluateStanding(active).Err("a"))

	pending := &domain.Account{Status: domain.AccountPending}
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(EvaluateStanding(pending).Err("p")))

	disabled := &domain.Account{Status: domain.AccountActive, Disabled: true}
	assert.Equal(t, domain.CodeAccountDisabled, domain.CodeOf(EvaluateStanding(disabled).Err("d")))
}

func TestEvaluateCurrencyRoute(t *testing.T) {
	assert.True(t, EvaluateCurrencyRoute(DefaultCurrencyRouting(), KindRoomStake, domain.CurrencyCash).Allowed)

	pointsOnlyRooms := CurrencyRouting{Rooms: []domain.Currency{domain.CurrencyPoints}}
	assert.True(t, EvaluateCurrencyRoute(pointsOnlyRooms, KindRoomStake, domain.CurrencyPoints).Allowed)
	assert.False(t, EvaluateCurrencyRoute(pointsOnlyRooms, KindRoomStake, domain.CurrencyCash).Allowed)
	assert.True(t, EvaluateCurrencyRoute(pointsOnlyRooms, KindBetStake, domain.CurrencyCash).Allowed)

	bad := EvaluateCurrencyRoute(DefaultCurrencyRouting(), KindBetStake, "gold")
	assert.False(t, bad.Allowed)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(bad.Err()))
}
