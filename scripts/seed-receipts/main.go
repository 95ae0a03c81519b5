// seed-receipts loads a handful of demo receipts into Firestore for local
// exploration of the list, search and submit flows.
//
// Usage:
//
//	export GOOGLE_CLOUD_PROJECT=your-project-id
//	go run ./scripts/seed-receipts/
package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/kmorrill/receipt-budgeter/internal/store"
)

func cents(v int64) *int64 { return &v }

func main() {
	ctx := context.Background()

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		log.Fatal("GOOGLE_CLOUD_PROJECT environment variable is required")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer client.Close()

	receipts := store.NewFirestoreStore(client)

	now := time.Now().UTC()
	demo := []*store.Receipt{
		{
			ID:            "demo-grocery-run",
			StoreName:     "Trader Joe's",
			StoreLocation: "Seattle, WA",
			PurchaseDate:  now.AddDate(0, 0, -3).Format("2006-01-02"),
			SubtotalCents: cents(4600),
			TaxCents:      cents(280),
			TotalCents:    cents(4880),
			Items: []store.ReceiptItem{
				{ID: "item_1", Name: "Bananas", PriceCents: cents(350), Category: "cat-groceries"},
				{ID: "item_2", Name: "Sourdough Bread", PriceCents: cents(250), Category: "cat-groceries"},
				{ID: "item_3", Name: "Handheld Vacuum", PriceCents: cents(4000), Category: "cat-household", AppliedTaxIDs: []string{"sales_tax"}},
			},
			Rates: []store.ReceiptRate{
				{ID: "sales_tax", Name: "Sales Tax", Rate: "0.07", Enabled: true},
			},
			ResolvedBy: "exact_subset_sum",
			CreatedAt:  now.AddDate(0, 0, -3),
		},
		{
			ID:            "demo-coffee",
			StoreName:     "Caffe Vita",
			StoreLocation: "Seattle, WA",
			PurchaseDate:  now.AddDate(0, 0, -1).Format("2006-01-02"),
			SubtotalCents: cents(1250),
			TotalCents:    cents(1250),
			Items: []store.ReceiptItem{
				{ID: "item_1", Name: "Whole Bean Coffee", PriceCents: cents(1250), Category: "cat-groceries"},
			},
			ResolvedBy: "no_tax",
			Submitted:  true,
			CreatedAt:  now.AddDate(0, 0, -1),
		},
		{
			ID:           "demo-hardware",
			StoreName:    "Ace Hardware",
			PurchaseDate: now.Format("2006-01-02"),
			TotalCents:   cents(2182),
			TaxCents:     cents(182),
			Items: []store.ReceiptItem{
				{ID: "item_1", Name: "Wood Screws", PriceCents: cents(800), Category: "cat-household", AppliedTaxIDs: []string{"sales_tax"}},
				{ID: "item_2", Name: "Paint Brush", PriceCents: cents(1200), Category: "cat-household", AppliedTaxIDs: []string{"sales_tax"}},
			},
			Rates: []store.ReceiptRate{
				{ID: "sales_tax", Name: "Sales Tax", Rate: "0.091", Enabled: true},
			},
			ResolvedBy: "tolerated_subset_sum",
			CreatedAt:  now,
		},
	}

	for _, receipt := range demo {
		if err := receipts.CreateReceipt(ctx, receipt); err != nil {
			log.Fatalf("Failed to seed receipt %s: %v", receipt.ID, err)
		}
		log.Printf("Seeded receipt %s (%s)", receipt.ID, receipt.StoreName)
	}

	log.Printf("Done: %d receipts seeded", len(demo))
}
