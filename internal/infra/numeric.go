package infra

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

var (
	errNumericNull   = errors.New("numeric value is NULL")
	errNumericFinite = errors.New("numeric value is NaN or infinite")
)

// NumericToInt64 reads a numeric(15,0) amount column. Amounts are whole
// units, so a fractional value is an error rather than being truncated.
func NumericToInt64(n pgtype.Numeric) (int64, error) {
	if err := checkFinite(n); err != nil {
		return 0, err
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp != 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(n.Exp))), nil)
		if n.Exp > 0 {
			v.Mul(v, scale)
		} else {
			var rem big.Int
			v.QuoRem(v, scale, &rem)
			if rem.Sign() != 0 {
				return 0, fmt.Errorf("numeric amount %s has a fractional part", decimal.NewFromBigInt(n.Int, n.Exp))
			}
		}
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("numeric amount %s overflows int64", v)
	}
	return v.Int64(), nil
}

// Int64ToNumeric encodes a whole-unit amount.
func Int64ToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(v), Valid: true}
}

// NumericToDecimal reads a fixed-point column such as the event odds.
func NumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if err := checkFinite(n); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// DecimalToNumeric encodes d without loss of scale.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func checkFinite(n pgtype.Numeric) error {
	if !n.Valid {
		return errNumericNull
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return errNumericFinite
	}
	return nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
