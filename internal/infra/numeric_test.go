package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToInt64(t *testing.T) {
	tests := []struct {
		name    string
		in      pgtype.Numeric
		want    int64
		wantErr string
	}{
		{"zero", Int64ToNumeric(0), 0, ""},
		{"balance", Int64ToNumeric(125_000), 125_000, ""},
		{"debit delta", Int64ToNumeric(-4_500), -4_500, ""},
		{"column max", Int64ToNumeric(999_999_999_999_999), 999_999_999_999_999, ""},
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(12), Exp: 3, Valid: true}, 12_000, ""},
		{"negative exponent without fraction", pgtype.Numeric{Int: big.NewInt(1500), Exp: -2, Valid: true}, 15, ""},
		{"fractional", pgtype.Numeric{Int: big.NewInt(1505), Exp: -2, Valid: true}, 0, "fractional"},
		{"null", pgtype.Numeric{}, 0, "NULL"},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, 0, "NaN"},
		{"infinity", pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, 0, "infinite"},
		{"overflow", pgtype.Numeric{Int: new(big.Int).Add(big.NewInt(math.MaxInt64), big.NewInt(1)), Valid: true}, 0, "overflows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NumericToInt64(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecimalNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"2", "1.85", "3.1250", "0.0001"} {
		t.Run(s, func(t *testing.T) {
			d := decimal.RequireFromString(s)
			got, err := NumericToDecimal(DecimalToNumeric(d))
			require.NoError(t, err)
			assert.True(t, d.Equal(got), "%s != %s", d, got)
		})
	}

	_, err := NumericToDecimal(pgtype.Numeric{})
	require.Error(t, err)
}
