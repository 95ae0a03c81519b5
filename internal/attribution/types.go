// Package attribution decides which line items on a receipt were actually
// taxed. Given the items and the receipt's tax summary it runs a cascade of
// decision tiers (no-tax short circuit, exact subset-sum, tolerance sweep,
// oracle escalation) and produces per-item tax-rate attributions that can be
// reconciled against the printed totals.
package attribution

import (
	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/money"
)

// LineItem is a single receipt line. Price is nil until populated; manually
// added items may not have one yet. AppliedTaxIDs is owned by the engine and
// always references ids present in the result's rate list.
type LineItem struct {
	ID            string
	Name          string
	Price         *money.Money
	AppliedTaxIDs []string
}

// TaxRate is a named tax on the receipt. Rate is a fraction in [0,1]; nil
// means the rate is known to exist but its magnitude is unknown (e.g. the
// oracle observed it without a figure).
type TaxRate struct {
	ID      string
	Name    string
	Rate    *decimal.Decimal
	Enabled bool
}

// TaxSummary is the receipt's tax block as extracted upstream. Any field
// may be absent. The merchant fields are hints forwarded to the oracle on
// escalation.
type TaxSummary struct {
	TotalTax         *money.Money
	Rates            []TaxRate
	MerchantName     string
	MerchantLocation string
}

// ResolvedBy names the tier that produced an attribution.
type ResolvedBy int

const (
	// ResolvedNoTax means the receipt carries no tax at all.
	ResolvedNoTax ResolvedBy = iota
	// ResolvedExactSubsetSum means an exact taxable subset was found.
	ResolvedExactSubsetSum
	// ResolvedToleratedSubsetSum means a subset was found within the
	// rounding-tolerance window around the exact target.
	ResolvedToleratedSubsetSum
	// ResolvedOracle means the heuristic oracle supplied the attribution.
	ResolvedOracle
	// ResolvedUnresolved means every tier failed; items carry no tax ids
	// and the caller should surface "tax attribution unavailable".
	ResolvedUnresolved
)

func (r ResolvedBy) String() string {
	switch r {
	case ResolvedNoTax:
		return "no_tax"
	case ResolvedExactSubsetSum:
		return "exact_subset_sum"
	case ResolvedToleratedSubsetSum:
		return "tolerated_subset_sum"
	case ResolvedOracle:
		return "oracle"
	default:
		return "unresolved"
	}
}

// AttributionResult is the immutable outcome of one engine run. A new
// analysis produces a new result; nothing here is shared or mutated after
// construction.
type AttributionResult struct {
	Items      []LineItem
	Rates      []TaxRate
	ResolvedBy ResolvedBy
}
