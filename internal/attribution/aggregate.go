package attribution

import (
	"sort"

	"github.com/kmorrill/receipt-budgeter/internal/money"
)

// CategoryTotal is one display row of the per-category breakdown.
type CategoryTotal struct {
	CategoryID string
	Subtotal   money.Money
	Tax        money.Money
	Total      money.Money
	ItemCount  int
}

// AggregateByCategory folds attributed items into category totals.
// categoryOf maps an item id to its externally assigned budget category id;
// items it maps to "" land in the empty-id row. Rows come back sorted by
// category id for a stable display order.
func AggregateByCategory(result AttributionResult, categoryOf func(itemID string) string) []CategoryTotal {
	rateByID := make(map[string]TaxRate, len(result.Rates))
	for _, r := range result.Rates {
		rateByID[r.ID] = r
	}

	rows := make(map[string]*CategoryTotal)
	for _, it := range result.Items {
		catID := categoryOf(it.ID)
		row, ok := rows[catID]
		if !ok {
			row = &CategoryTotal{CategoryID: catID}
			rows[catID] = row
		}
		row.ItemCount++
		if it.Price == nil {
			continue
		}
		row.Subtotal = row.Subtotal.Add(*it.Price)
		for _, id := range it.AppliedTaxIDs {
			r, ok := rateByID[id]
			if !ok || r.Rate == nil {
				continue
			}
			row.Tax = row.Tax.Add(money.Fraction(*it.Price, *r.Rate))
		}
	}

	out := make([]CategoryTotal, 0, len(rows))
	for _, row := range rows {
		row.Total = row.Subtotal.Add(row.Tax)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}
