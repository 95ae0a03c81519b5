package attribution

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/money"
)

func ratePtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return &d
}

func pricePtr(cents int64) *money.Money {
	m := money.Money(cents)
	return &m
}

func taxPtr(cents int64) *money.Money {
	m := money.Money(cents)
	return &m
}

func taxedIDs(result AttributionResult) map[string][]string {
	out := make(map[string][]string)
	for _, it := range result.Items {
		if len(it.AppliedTaxIDs) > 0 {
			out[it.ID] = it.AppliedTaxIDs
		}
	}
	return out
}

// stubOracle is a deterministic TaxOracle for tests.
type stubOracle struct {
	guess *OracleGuess
	err   error
	calls int
}

func (s *stubOracle) GuessTaxability(ctx context.Context, req OracleRequest) (*OracleGuess, error) {
	s.calls++
	return s.guess, s.err
}

func TestAttributeTaxes_NoTax(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "a", Name: "Milk", Price: pricePtr(350)},
		{ID: "b", Name: "Bread", Price: pricePtr(250)},
	}

	tests := []struct {
		name    string
		summary TaxSummary
	}{
		{"no tax info at all", TaxSummary{}},
		{"zero total, no rates", TaxSummary{TotalTax: taxPtr(0)}},
		{"zero total, disabled rate", TaxSummary{
			TotalTax: taxPtr(0),
			Rates:    []TaxRate{{ID: "r1", Name: "Sales Tax", Rate: ratePtr(t, "0.07"), Enabled: false}},
		}},
		{"no total, unknown-magnitude rate", TaxSummary{
			Rates: []TaxRate{{ID: "r1", Name: "Sales Tax", Enabled: true}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.AttributeTaxes(context.Background(), items, tt.summary)
			if result.ResolvedBy != ResolvedNoTax {
				t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedNoTax)
			}
			for _, it := range result.Items {
				if len(it.AppliedTaxIDs) != 0 {
					t.Errorf("item %s has tax ids %v, want none", it.ID, it.AppliedTaxIDs)
				}
			}
		})
	}
}

// TestAttributeTaxes_ExactSubsetSum is the end-to-end scenario: only the
// 40.00 item explains a 2.80 tax at 7%.
func TestAttributeTaxes_ExactSubsetSum(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "a", Name: "Milk", Price: pricePtr(350)},
		{ID: "b", Name: "Bread", Price: pricePtr(250)},
		{ID: "c", Name: "Desk Lamp", Price: pricePtr(4000)},
	}
	summary := TaxSummary{
		TotalTax: taxPtr(280),
		Rates:    []TaxRate{{ID: "r1", Name: "Sales Tax", Rate: ratePtr(t, "0.07"), Enabled: true}},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedExactSubsetSum {
		t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedExactSubsetSum)
	}
	want := map[string][]string{"c": {"r1"}}
	if got := taxedIDs(result); !reflect.DeepEqual(got, want) {
		t.Errorf("taxed items = %v, want %v", got, want)
	}
}

// TestAttributeTaxes_ToleratedSubsetSum uses items summing to 357 cents
// against an exact target of 360: delta -3 is inside the window.
func TestAttributeTaxes_ToleratedSubsetSum(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "a", Name: "Soap", Price: pricePtr(103)},
		{ID: "b", Name: "Shampoo", Price: pricePtr(254)},
	}
	summary := TaxSummary{
		TotalTax: taxPtr(36),
		Rates:    []TaxRate{{ID: "r1", Name: "Sales Tax", Rate: ratePtr(t, "0.10"), Enabled: true}},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedToleratedSubsetSum {
		t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedToleratedSubsetSum)
	}
	want := map[string][]string{"a": {"r1"}, "b": {"r1"}}
	if got := taxedIDs(result); !reflect.DeepEqual(got, want) {
		t.Errorf("taxed items = %v, want %v", got, want)
	}
}

// TestAttributeTaxes_WindowBoundary checks the sweep stops at ±5: the only
// reachable sum is 10 cents off the target, so the engine must not claim a
// tolerated match.
func TestAttributeTaxes_WindowBoundary(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "a", Name: "Soap", Price: pricePtr(250)},
		{ID: "b", Name: "Shampoo", Price: pricePtr(100)},
	}
	summary := TaxSummary{
		TotalTax: taxPtr(36),
		Rates:    []TaxRate{{ID: "r1", Name: "Sales Tax", Rate: ratePtr(t, "0.10"), Enabled: true}},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedUnresolved {
		t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedUnresolved)
	}
	if got := taxedIDs(result); len(got) != 0 {
		t.Errorf("taxed items = %v, want none", got)
	}
}

func TestAttributeTaxes_OracleEscalation(t *testing.T) {
	oracle := &stubOracle{
		guess: &OracleGuess{
			ItemTaxIDs: map[string][]string{"a": {EstimatedRateID}},
			ObservedRates: []TaxRate{
				{Name: "City tax"}, // no id, unknown magnitude
			},
		},
	}
	engine := NewEngine(WithOracle(oracle))
	items := []LineItem{
		{ID: "a", Name: "Widget", Price: pricePtr(999)},
		{ID: "b", Name: "Gadget", Price: pricePtr(501)},
	}
	// Two rates of unknown magnitude: tiers 2 and 3 do not apply.
	summary := TaxSummary{
		TotalTax: taxPtr(120),
		Rates: []TaxRate{
			{ID: "state", Name: "State", Enabled: true},
			{ID: "county", Name: "County", Enabled: true},
		},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedOracle {
		t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedOracle)
	}
	if oracle.calls != 1 {
		t.Errorf("oracle called %d times, want 1", oracle.calls)
	}

	estimated := 0
	for _, r := range result.Rates {
		if r.ID == EstimatedRateID {
			estimated++
			if r.Rate != nil {
				t.Error("estimated rate should have unknown magnitude")
			}
		}
	}
	if estimated != 1 {
		t.Fatalf("found %d estimated rates, want 1", estimated)
	}

	want := map[string][]string{"a": {EstimatedRateID}}
	if got := taxedIDs(result); !reflect.DeepEqual(got, want) {
		t.Errorf("taxed items = %v, want %v", got, want)
	}

	// Re-running with the merged rates visible must not duplicate the
	// synthetic rate.
	again := engine.AttributeTaxes(context.Background(), items, TaxSummary{
		TotalTax: taxPtr(120),
		Rates:    result.Rates,
	})
	estimated = 0
	for _, r := range again.Rates {
		if r.ID == EstimatedRateID {
			estimated++
		}
	}
	if estimated != 1 {
		t.Errorf("after re-run found %d estimated rates, want 1", estimated)
	}
}

func TestAttributeTaxes_OracleFiltersUnknownRateIDs(t *testing.T) {
	oracle := &stubOracle{
		guess: &OracleGuess{
			ItemTaxIDs: map[string][]string{
				"a": {"state", "made-up"},
				"b": {"made-up"},
			},
		},
	}
	engine := NewEngine(WithOracle(oracle))
	items := []LineItem{
		{ID: "a", Price: pricePtr(999)},
		{ID: "b", Price: pricePtr(501)},
	}
	summary := TaxSummary{
		TotalTax: taxPtr(120),
		Rates: []TaxRate{
			{ID: "state", Name: "State", Enabled: true},
			{ID: "county", Name: "County", Enabled: true},
		},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedOracle {
		t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedOracle)
	}
	want := map[string][]string{"a": {"state"}}
	if got := taxedIDs(result); !reflect.DeepEqual(got, want) {
		t.Errorf("taxed items = %v, want %v", got, want)
	}
}

func TestAttributeTaxes_OracleFailureDegrades(t *testing.T) {
	tests := []struct {
		name   string
		oracle TaxOracle
	}{
		{"oracle error", &stubOracle{err: errors.New("model unavailable")}},
		{"empty guess", &stubOracle{guess: &OracleGuess{}}},
		{"nil guess", &stubOracle{}},
	}

	items := []LineItem{{ID: "a", Price: pricePtr(999)}}
	summary := TaxSummary{
		TotalTax: taxPtr(120),
		Rates: []TaxRate{
			{ID: "state", Enabled: true},
			{ID: "county", Enabled: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(WithOracle(tt.oracle))
			result := engine.AttributeTaxes(context.Background(), items, summary)
			if result.ResolvedBy != ResolvedUnresolved {
				t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedUnresolved)
			}
			if got := taxedIDs(result); len(got) != 0 {
				t.Errorf("taxed items = %v, want none", got)
			}
		})
	}
}

func TestAttributeTaxes_NoOracleConfigured(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{{ID: "a", Price: pricePtr(999)}}
	summary := TaxSummary{
		TotalTax: taxPtr(120),
		Rates:    []TaxRate{{ID: "state", Enabled: true}, {ID: "county", Enabled: true}},
	}
	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedUnresolved {
		t.Fatalf("ResolvedBy = %v, want %v", result.ResolvedBy, ResolvedUnresolved)
	}
}

func TestAttributeTaxes_Idempotent(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "a", Price: pricePtr(100)},
		{ID: "b", Price: pricePtr(200)},
		{ID: "c", Price: pricePtr(300)},
	}
	// Target 300 is explained by both {c} and {a,b}; the tie-break must pick
	// the same subset every run.
	summary := TaxSummary{
		TotalTax: taxPtr(30),
		Rates:    []TaxRate{{ID: "r1", Rate: ratePtr(t, "0.10"), Enabled: true}},
	}

	first := engine.AttributeTaxes(context.Background(), items, summary)
	for i := 0; i < 10; i++ {
		again := engine.AttributeTaxes(context.Background(), items, summary)
		if again.ResolvedBy != first.ResolvedBy {
			t.Fatalf("run %d ResolvedBy = %v, first was %v", i, again.ResolvedBy, first.ResolvedBy)
		}
		if !reflect.DeepEqual(taxedIDs(again), taxedIDs(first)) {
			t.Fatalf("run %d taxed %v, first taxed %v", i, taxedIDs(again), taxedIDs(first))
		}
	}
}

func TestAttributeTaxes_DoesNotMutateInput(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "c", Name: "Desk Lamp", Price: pricePtr(4000), AppliedTaxIDs: []string{"stale"}},
	}
	summary := TaxSummary{
		TotalTax: taxPtr(280),
		Rates:    []TaxRate{{ID: "r1", Rate: ratePtr(t, "0.07"), Enabled: true}},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedExactSubsetSum {
		t.Fatalf("ResolvedBy = %v", result.ResolvedBy)
	}
	if !reflect.DeepEqual(items[0].AppliedTaxIDs, []string{"stale"}) {
		t.Errorf("input item mutated: AppliedTaxIDs = %v", items[0].AppliedTaxIDs)
	}
	if got := result.Items[0].AppliedTaxIDs; !reflect.DeepEqual(got, []string{"r1"}) {
		t.Errorf("result item AppliedTaxIDs = %v, want [r1]", got)
	}
}

func TestAttributeTaxes_NilPricesExcluded(t *testing.T) {
	engine := NewEngine()
	items := []LineItem{
		{ID: "manual", Name: "Added by hand"},
		{ID: "c", Price: pricePtr(4000)},
	}
	summary := TaxSummary{
		TotalTax: taxPtr(280),
		Rates:    []TaxRate{{ID: "r1", Rate: ratePtr(t, "0.07"), Enabled: true}},
	}

	result := engine.AttributeTaxes(context.Background(), items, summary)
	if result.ResolvedBy != ResolvedExactSubsetSum {
		t.Fatalf("ResolvedBy = %v", result.ResolvedBy)
	}
	want := map[string][]string{"c": {"r1"}}
	if got := taxedIDs(result); !reflect.DeepEqual(got, want) {
		t.Errorf("taxed items = %v, want %v", got, want)
	}
}
