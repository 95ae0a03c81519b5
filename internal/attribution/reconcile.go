package attribution

import "github.com/kmorrill/receipt-budgeter/internal/money"

// mismatchEpsilon is the advisory threshold in cents. A reported figure that
// differs from the computed one by exactly one cent is considered in
// agreement; anything beyond is flagged.
const mismatchEpsilon = 1

// MismatchKind identifies a reported figure that disagrees with the computed
// one. Mismatches are diagnostics for the human reviewer, never errors.
type MismatchKind int

const (
	SubtotalMismatch MismatchKind = iota
	TaxMismatch
	TotalMismatch
)

func (k MismatchKind) String() string {
	switch k {
	case SubtotalMismatch:
		return "subtotal_mismatch"
	case TaxMismatch:
		return "tax_mismatch"
	case TotalMismatch:
		return "total_mismatch"
	default:
		return "unknown_mismatch"
	}
}

// ReportedTotals carries the receipt-printed figures. Each is optional;
// absent figures are never flagged.
type ReportedTotals struct {
	Subtotal *money.Money
	Tax      *money.Money
	Total    *money.Money
}

// ReconciliationReport compares computed totals against reported ones. Pure
// derived data, recomputed on demand.
type ReconciliationReport struct {
	ComputedSubtotal money.Money
	ComputedTax      money.Money
	ComputedTotal    money.Money

	ReportedSubtotal *money.Money
	ReportedTax      *money.Money
	ReportedTotal    *money.Money

	Mismatches []MismatchKind
}

// Reconcile recomputes subtotal, tax and total from the attributed items and
// flags any reported figure more than one cent away. The attribution stays
// usable regardless of mismatches.
func Reconcile(result AttributionResult, reported ReportedTotals) ReconciliationReport {
	rateByID := make(map[string]TaxRate, len(result.Rates))
	for _, r := range result.Rates {
		rateByID[r.ID] = r
	}

	var subtotal, tax money.Money
	for _, it := range result.Items {
		if it.Price == nil {
			continue
		}
		subtotal = subtotal.Add(*it.Price)
		for _, id := range it.AppliedTaxIDs {
			r, ok := rateByID[id]
			if !ok || r.Rate == nil {
				continue
			}
			tax = tax.Add(money.Fraction(*it.Price, *r.Rate))
		}
	}

	report := ReconciliationReport{
		ComputedSubtotal: subtotal,
		ComputedTax:      tax,
		ComputedTotal:    subtotal.Add(tax),
		ReportedSubtotal: reported.Subtotal,
		ReportedTax:      reported.Tax,
		ReportedTotal:    reported.Total,
	}

	if exceedsEpsilon(reported.Subtotal, report.ComputedSubtotal) {
		report.Mismatches = append(report.Mismatches, SubtotalMismatch)
	}
	if exceedsEpsilon(reported.Tax, report.ComputedTax) {
		report.Mismatches = append(report.Mismatches, TaxMismatch)
	}
	if exceedsEpsilon(reported.Total, report.ComputedTotal) {
		report.Mismatches = append(report.Mismatches, TotalMismatch)
	}
	return report
}

func exceedsEpsilon(reported *money.Money, computed money.Money) bool {
	if reported == nil {
		return false
	}
	diff := reported.Sub(computed)
	if diff < 0 {
		diff = -diff
	}
	return diff > mismatchEpsilon
}
