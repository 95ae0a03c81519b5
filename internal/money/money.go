// Package money provides fixed-point currency arithmetic in integer minor
// units (cents). All receipt math happens in cents so that repeated addition
// never accumulates floating-point drift.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. A single USD-like currency with two decimal
// places is assumed throughout.
type Money int64

// InvalidAmountError reports a string that could not be parsed as a money
// amount.
type InvalidAmountError struct {
	Input string
	Cause error
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %q: %v", e.Input, e.Cause)
}

func (e *InvalidAmountError) Unwrap() error {
	return e.Cause
}

// Parse converts a decimal string such as "12.34" into cents.
// Sub-cent digits round half away from zero.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &InvalidAmountError{Input: s, Cause: err}
	}
	return FromDecimal(d), nil
}

// FromDecimal converts a decimal dollar amount into cents, rounding half away
// from zero.
func FromDecimal(d decimal.Decimal) Money {
	// decimal.Round rounds half away from zero, which is the rounding rule
	// used everywhere in this package.
	return Money(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// FromFloat converts a float dollar amount into cents, rounding half away
// from zero. Extraction results arrive as JSON numbers, so this is the entry
// point for upstream data; user-entered strings should go through Parse.
func FromFloat(f float64) Money {
	return FromDecimal(decimal.NewFromFloat(f))
}

// Fraction multiplies an amount by a rate and rounds to the nearest cent,
// half away from zero. Fraction(250, 0.0825) = 21 (20.625 rounds up).
func Fraction(amount Money, rate decimal.Decimal) Money {
	return Money(decimal.NewFromInt(int64(amount)).Mul(rate).Round(0).IntPart())
}

// Add returns m + o. Plain integer addition, exact by construction.
func (m Money) Add(o Money) Money { return m + o }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return m - o }

// Cents returns the raw minor-unit value.
func (m Money) Cents() int64 { return int64(m) }

// Float64 returns the amount in dollars. Display only; never feed the result
// back into arithmetic.
func (m Money) Float64() float64 {
	return float64(m) / 100.0
}

// String formats the amount as a plain decimal, e.g. "12.34" or "-0.05".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
