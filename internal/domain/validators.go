package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinOdds is the lowest admissible decimal odds; anything below would pay
// less than the stake back.
var MinOdds = decimal.NewFromInt(1)

// ValidateCurrency checks that c is one of the account currencies.
func ValidateCurrency(c Currency) error {
	if !c.Valid() {
		return fmt.Errorf("invalid currency: %q", c)
	}
	return nil
}

// MaxAmount caps any single stake, funding or request. A room pool of two
// stakes stays well inside int64 below it.
const MaxAmount int64 = math.MaxInt64 / 4

// ValidatePositiveAmount checks that an amount is positive and under MaxAmount.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	if amount > MaxAmount {
		return fmt.Errorf("amount %d exceeds the ceiling of %d", amount, MaxAmount)
	}
	return nil
}

// CheckedAdd returns a+b, or an error when the sum overflows int64.
func CheckedAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("amount overflow: %d + %d", a, b)
	}
	return a + b, nil
}

// ValidateOdds checks decimal odds are at least 1.0.
func ValidateOdds(odds decimal.Decimal) error {
	if odds.LessThan(MinOdds) {
		return fmt.Errorf("odds must be at least %s, got %s", MinOdds, odds)
	}
	return nil
}

// ValidateChoice checks that c is a playable hand.
func ValidateChoice(c Choice) error {
	if !c.Valid() {
		return fmt.Errorf("invalid choice: %q", c)
	}
	return nil
}

// ValidateEventLabels checks the event title and outcome labels.
func ValidateEventLabels(title, a, b string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return fmt.Errorf("both outcome labels are required")
	}
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return fmt.Errorf("outcome labels must differ")
	}
	return nil
}
