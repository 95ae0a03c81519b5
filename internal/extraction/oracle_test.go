package extraction

import (
	"context"
	"reflect"
	"testing"

	"github.com/kmorrill/receipt-budgeter/internal/attribution"
	"github.com/kmorrill/receipt-budgeter/internal/money"
)

func TestGuessTaxability(t *testing.T) {
	srv := fakeGeminiServer(t, `{
		"items": [
			{"item_id": "item_1", "tax_ids": ["state"]},
			{"item_id": "item_2", "tax_ids": []}
		],
		"observed_rates": [
			{"id": "", "name": "City tax", "rate": 0.02},
			{"id": "", "name": "Mystery levy", "rate": 0}
		]
	}`)
	defer srv.Close()

	price := money.Money(999)
	oracle := NewGeminiOracle(newTestClient(srv.URL))
	guess, err := oracle.GuessTaxability(context.Background(), attribution.OracleRequest{
		Items: []attribution.LineItem{
			{ID: "item_1", Name: "Desk Lamp", Price: &price},
			{ID: "item_2", Name: "Organic Milk"},
		},
		Rates: []attribution.TaxRate{
			{ID: "state", Name: "State", Enabled: true},
		},
		MerchantName:     "Whole Foods Mkt",
		MerchantLocation: "Seattle",
	})
	if err != nil {
		t.Fatalf("GuessTaxability: %v", err)
	}

	wantIDs := map[string][]string{"item_1": {"state"}}
	if !reflect.DeepEqual(guess.ItemTaxIDs, wantIDs) {
		t.Errorf("ItemTaxIDs = %v, want %v", guess.ItemTaxIDs, wantIDs)
	}

	if len(guess.ObservedRates) != 2 {
		t.Fatalf("got %d observed rates, want 2", len(guess.ObservedRates))
	}
	city := guess.ObservedRates[0]
	if city.Name != "City tax" || city.Rate == nil || city.Rate.String() != "0.02" {
		t.Errorf("observed rate 0 = %+v", city)
	}
	levy := guess.ObservedRates[1]
	if levy.Name != "Mystery levy" || levy.Rate != nil {
		t.Errorf("observed rate 1 = %+v, want unknown magnitude", levy)
	}
}

func TestGuessTaxability_ModelError(t *testing.T) {
	srv := fakeGeminiServer(t, "nope")
	defer srv.Close()

	oracle := NewGeminiOracle(newTestClient(srv.URL))
	_, err := oracle.GuessTaxability(context.Background(), attribution.OracleRequest{
		Items: []attribution.LineItem{{ID: "item_1", Name: "Thing"}},
	})
	if err == nil {
		t.Fatal("expected error for unparseable model reply")
	}
}
