package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	MinBet  = decimal.RequireFromString("0.01")
	OpenMax = decimal.RequireFromString("999999.99")
)

// ToCents converts a two-decimal amount into integer hundredths.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// RoundMoney rounds half-to-even to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// Payout is bet times multiplier, rounded to cents.
func Payout(bet, multiplier decimal.Decimal) decimal.Decimal {
	return RoundMoney(bet.Mul(multiplier))
}

// ValidateAmount checks min <= amount <= max with at most two decimals.
// When exclusiveMin is set the lower bound is strict.
func ValidateAmount(field string, amount, min, max decimal.Decimal, exclusiveMin bool) error {
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s must have at most two decimal places", ErrValidation, field)
	}
	if exclusiveMin && !amount.GreaterThan(min) {
		return fmt.Errorf("%w: %s must be greater than %s", ErrValidation, field, min.StringFixed(2))
	}
	if !exclusiveMin && amount.LessThan(min) {
		return fmt.Errorf("%w: minimum %s is %s", ErrValidation, field, min.StringFixed(2))
	}
	if amount.GreaterThan(max) {
		return fmt.Errorf("%w: maximum %s is %s", ErrValidation, field, max.StringFixed(2))
	}
	return nil
}
