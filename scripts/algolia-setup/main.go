// algolia-setup configures Algolia index settings for receipt search.
// This is the IaC definition for the search index.
//
// Usage:
//
//	ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=... go run ./scripts/algolia-setup
//	ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=... ALGOLIA_INDEX_NAME=receipts go run ./scripts/algolia-setup
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"
)

func int32Ptr(v int32) *int32 { return &v }

func main() {
	appID := os.Getenv("ALGOLIA_APP_ID")
	adminKey := os.Getenv("ALGOLIA_ADMIN_KEY")
	indexName := os.Getenv("ALGOLIA_INDEX_NAME")

	if appID == "" || adminKey == "" {
		log.Fatal("ALGOLIA_APP_ID and ALGOLIA_ADMIN_KEY are required")
	}
	if indexName == "" {
		indexName = "receipts"
	}

	client, err := search.NewClient(appID, adminKey)
	if err != nil {
		log.Fatalf("Failed to create Algolia client: %v", err)
	}

	log.Printf("Configuring Algolia index %q (app: %s)...", indexName, appID)

	settings := &search.IndexSettings{
		// Searchable attributes in priority order
		SearchableAttributes: []string{
			"StoreName",
			"ItemNames",
			"StoreLocation",
		},

		// Attributes available for faceting/filtering
		AttributesForFaceting: []string{
			"searchable(Categories)",
			"filterOnly(Submitted)",
		},

		// Numeric attributes for range filters
		NumericAttributesForFiltering: []string{
			"Total",
			"TotalCents",
			"PurchaseDateUnix",
			"CreatedAtUnix",
		},

		// Custom ranking (applied after text relevance)
		// Most recent receipts first
		CustomRanking: []string{
			"desc(CreatedAtUnix)",
		},

		AttributesToRetrieve: []string{
			"objectID",
			"StoreName",
			"StoreLocation",
			"PurchaseDate",
			"Total",
			"TotalCents",
			"Categories",
			"Submitted",
		},

		// Only highlight text-searchable fields
		AttributesToHighlight: []string{
			"StoreName",
			"ItemNames",
		},

		// Pagination defaults
		HitsPerPage:       int32Ptr(25),
		MaxValuesPerFacet: int32Ptr(100),

		// Typo tolerance thresholds
		MinWordSizefor1Typo:  int32Ptr(4),
		MinWordSizefor2Typos: int32Ptr(8),
	}

	req := client.NewApiSetSettingsRequest(indexName, settings)
	resp, err := client.SetSettings(req)
	if err != nil {
		log.Fatalf("Failed to set index settings: %v", err)
	}

	log.Printf("Index settings applied (taskID: %d, updatedAt: %s)", resp.TaskID, resp.UpdatedAt)

	fmt.Println()
	fmt.Println("=== Algolia Index Configuration ===")
	fmt.Printf("Index:              %s\n", indexName)
	fmt.Printf("App ID:             %s\n", appID)
	fmt.Println()
	fmt.Println("Searchable attrs:   StoreName, ItemNames, StoreLocation")
	fmt.Println("Facet filters:      Categories, Submitted")
	fmt.Println("Numeric filters:    Total, TotalCents, PurchaseDateUnix, CreatedAtUnix")
	fmt.Println("Custom ranking:     desc(CreatedAtUnix)")
	fmt.Println("Hits per page:      25")
	fmt.Println()
	fmt.Println("Done. Settings are applied asynchronously — they'll be active within seconds.")
}
