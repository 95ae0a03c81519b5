package attribution

import (
	"reflect"
	"testing"
)

func TestAggregateByCategory(t *testing.T) {
	result := AttributionResult{
		Items: []LineItem{
			{ID: "a", Price: pricePtr(350)},
			{ID: "b", Price: pricePtr(250)},
			{ID: "c", Price: pricePtr(4000), AppliedTaxIDs: []string{"r1"}},
			{ID: "d"}, // no price extracted
		},
		Rates: []TaxRate{{ID: "r1", Rate: ratePtr(t, "0.07"), Enabled: true}},
	}
	categories := map[string]string{
		"a": "groceries",
		"b": "groceries",
		"c": "household",
		"d": "groceries",
	}

	rows := AggregateByCategory(result, func(itemID string) string {
		return categories[itemID]
	})

	want := []CategoryTotal{
		{CategoryID: "groceries", Subtotal: 600, Tax: 0, Total: 600, ItemCount: 3},
		{CategoryID: "household", Subtotal: 4000, Tax: 280, Total: 4280, ItemCount: 1},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("AggregateByCategory = %+v, want %+v", rows, want)
	}
}

func TestAggregateByCategory_UncategorizedBucket(t *testing.T) {
	result := AttributionResult{
		Items: []LineItem{
			{ID: "a", Price: pricePtr(100)},
			{ID: "b", Price: pricePtr(200)},
		},
	}

	rows := AggregateByCategory(result, func(string) string { return "" })
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].CategoryID != "" {
		t.Errorf("CategoryID = %q, want empty bucket", rows[0].CategoryID)
	}
	if rows[0].Subtotal != 300 || rows[0].ItemCount != 2 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestAggregateByCategory_Empty(t *testing.T) {
	rows := AggregateByCategory(AttributionResult{}, func(string) string { return "x" })
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestAggregateByCategory_SortedByCategoryID(t *testing.T) {
	result := AttributionResult{
		Items: []LineItem{
			{ID: "a", Price: pricePtr(100)},
			{ID: "b", Price: pricePtr(100)},
			{ID: "c", Price: pricePtr(100)},
		},
	}
	order := map[string]string{"a": "zebra", "b": "apple", "c": "mango"}
	rows := AggregateByCategory(result, func(id string) string { return order[id] })

	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.CategoryID
	}
	want := []string{"apple", "mango", "zebra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("category order = %v, want %v", got, want)
	}
}
