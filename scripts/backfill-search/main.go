// backfill-search re-indexes every stored receipt into Algolia. Run it
// after creating the index or when the index schema changes.
//
// This script is idempotent: indexing is an upsert keyed by receipt id.
//
// Usage:
//
//	export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account.json
//	export GOOGLE_CLOUD_PROJECT=your-project-id
//	export ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=...
//	go run ./scripts/backfill-search/
package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"

	"github.com/kmorrill/receipt-budgeter/internal/search"
	"github.com/kmorrill/receipt-budgeter/internal/store"
)

func main() {
	ctx := context.Background()

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		log.Fatal("GOOGLE_CLOUD_PROJECT environment variable is required")
	}

	searcher, err := search.NewClient(search.Config{
		AppID:     os.Getenv("ALGOLIA_APP_ID"),
		APIKey:    os.Getenv("ALGOLIA_ADMIN_KEY"),
		IndexName: os.Getenv("ALGOLIA_INDEX_NAME"),
	})
	if err != nil {
		log.Fatalf("Failed to create Algolia client: %v", err)
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer client.Close()

	receipts := store.NewFirestoreStore(client)

	indexed, failed := 0, 0
	pageToken := ""
	for {
		page, next, err := receipts.ListReceipts(ctx, 100, pageToken)
		if err != nil {
			log.Fatalf("Failed to list receipts: %v", err)
		}
		for _, receipt := range page {
			if err := searcher.IndexReceipt(ctx, receipt); err != nil {
				log.Printf("Failed to index receipt %s: %v", receipt.ID, err)
				failed++
				continue
			}
			indexed++
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	log.Printf("Backfill complete: %d indexed, %d failed", indexed, failed)
}
