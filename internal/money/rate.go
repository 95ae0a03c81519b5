package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseRate interprets a user-entered tax rate string. A numeric value
// greater than 1 is treated as a percentage ("7" means 7%), anything else as
// a decimal fraction ("0.07" means 7%). The result must land in [0, 1].
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &InvalidAmountError{Input: s, Cause: err}
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("tax rate %q is negative", s)
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		d = d.Div(decimal.NewFromInt(100))
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("tax rate %q is out of range", s)
	}
	return d, nil
}
