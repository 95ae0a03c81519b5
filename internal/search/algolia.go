// Package search indexes analyzed receipts into Algolia for full-text
// lookup by store, item or category.
package search

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	"github.com/kmorrill/receipt-budgeter/internal/store"
)

// Config holds Algolia configuration.
type Config struct {
	AppID     string
	APIKey    string
	IndexName string
}

// Params defines the input for a receipt search.
type Params struct {
	Query    string
	Category string
	// Submitted filters on import status when non-nil.
	Submitted *bool
	// Total range (dollars)
	TotalMin float64
	TotalMax float64
	// Purchase date range
	StartDate *time.Time
	EndDate   *time.Time
	// Pagination (offset-based)
	Page     int
	PageSize int
}

// Result is one receipt hit.
type Result struct {
	ReceiptID     string   `json:"receiptId"`
	StoreName     string   `json:"storeName"`
	StoreLocation string   `json:"storeLocation,omitempty"`
	PurchaseDate  string   `json:"purchaseDate,omitempty"`
	Total         float64  `json:"total,omitempty"`
	TotalCents    int64    `json:"totalCents,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Submitted     bool     `json:"submitted"`
}

// Response holds results from Algolia.
type Response struct {
	Results    []Result `json:"results"`
	TotalCount int      `json:"totalCount"`
	TotalPages int      `json:"totalPages"`
	Page       int      `json:"page"`
}

// Client wraps the Algolia search API client.
type Client struct {
	client    *search.APIClient
	indexName string
}

// NewClient creates a new Algolia receipt search client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("algolia AppID and APIKey are required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "receipts"
	}

	client, err := search.NewClient(cfg.AppID, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating algolia client: %w", err)
	}

	return &Client{
		client:    client,
		indexName: cfg.IndexName,
	}, nil
}

// IndexReceipt upserts a receipt document into the index. Re-indexing after
// submission keeps the Submitted facet current.
func (c *Client) IndexReceipt(ctx context.Context, receipt *store.Receipt) error {
	body := map[string]any{
		"objectID":      receipt.ID,
		"StoreName":     receipt.StoreName,
		"StoreLocation": receipt.StoreLocation,
		"PurchaseDate":  receipt.PurchaseDate,
		"Submitted":     receipt.Submitted,
		"CreatedAtUnix": receipt.CreatedAt.Unix(),
	}
	if receipt.TotalCents != nil {
		body["TotalCents"] = *receipt.TotalCents
		body["Total"] = float64(*receipt.TotalCents) / 100
	}
	if date, err := time.Parse("2006-01-02", receipt.PurchaseDate); err == nil {
		body["PurchaseDateUnix"] = date.Unix()
	}

	itemNames := make([]string, 0, len(receipt.Items))
	categorySet := make(map[string]struct{})
	for _, item := range receipt.Items {
		itemNames = append(itemNames, item.Name)
		if item.Category != "" {
			categorySet[item.Category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(categorySet))
	for category := range categorySet {
		categories = append(categories, category)
	}
	body["ItemNames"] = itemNames
	body["Categories"] = categories

	_, err := c.client.SaveObject(c.client.NewApiSaveObjectRequest(c.indexName, body))
	if err != nil {
		return fmt.Errorf("algolia index receipt %s: %w", receipt.ID, err)
	}
	return nil
}

// SearchReceipts performs a full-text receipt search via Algolia.
func (c *Client) SearchReceipts(ctx context.Context, params Params) (*Response, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 100 {
		pageSize = 100
	}

	page := params.Page
	if page < 0 {
		page = 0
	}

	searchParams := search.SearchParamsObjectAsSearchParams(
		search.NewSearchParamsObject().
			SetQuery(params.Query).
			SetHitsPerPage(int32(pageSize)).
			SetPage(int32(page)).
			SetFilters(buildFilters(params)),
	)

	resp, err := c.client.SearchSingleIndex(c.client.NewApiSearchSingleIndexRequest(c.indexName).WithSearchParams(searchParams))
	if err != nil {
		return nil, fmt.Errorf("algolia search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if result, ok := hitToResult(hit.AdditionalProperties); ok {
			results = append(results, result)
		}
	}

	totalCount := 0
	if resp.NbHits != nil {
		totalCount = int(*resp.NbHits)
	}
	totalPages := 0
	if resp.NbPages != nil {
		totalPages = int(*resp.NbPages)
	}

	return &Response{
		Results:    results,
		TotalCount: totalCount,
		TotalPages: totalPages,
		Page:       page,
	}, nil
}

// buildFilters constructs the Algolia filter string from search params.
func buildFilters(params Params) string {
	var parts []string

	if params.Category != "" {
		parts = append(parts, fmt.Sprintf("Categories:%q", params.Category))
	}
	if params.Submitted != nil {
		parts = append(parts, fmt.Sprintf("Submitted:%t", *params.Submitted))
	}

	// Total range (TotalCents numeric field)
	if params.TotalMin > 0 {
		parts = append(parts, fmt.Sprintf("TotalCents >= %d", int64(params.TotalMin*100)))
	}
	if params.TotalMax > 0 {
		parts = append(parts, fmt.Sprintf("TotalCents <= %d", int64(params.TotalMax*100)))
	}

	// Purchase date range (PurchaseDateUnix numeric field)
	if params.StartDate != nil {
		parts = append(parts, fmt.Sprintf("PurchaseDateUnix >= %d", params.StartDate.Unix()))
	}
	if params.EndDate != nil {
		parts = append(parts, fmt.Sprintf("PurchaseDateUnix <= %d", params.EndDate.Unix()))
	}

	return strings.Join(parts, " AND ")
}

// hitToResult converts an Algolia hit to a receipt result.
func hitToResult(props map[string]any) (Result, bool) {
	var result Result

	if v, ok := props["objectID"].(string); ok {
		result.ReceiptID = v
	}
	if v, ok := props["StoreName"].(string); ok {
		result.StoreName = v
	}
	if v, ok := props["StoreLocation"].(string); ok {
		result.StoreLocation = v
	}
	if v, ok := props["PurchaseDate"].(string); ok {
		result.PurchaseDate = v
	}
	if v, ok := props["TotalCents"].(float64); ok && v != 0 {
		result.TotalCents = int64(v)
		result.Total = v / 100
	}
	if v, ok := props["Submitted"].(bool); ok {
		result.Submitted = v
	}
	if v, ok := props["Categories"].([]any); ok {
		for _, c := range v {
			if s, ok := c.(string); ok {
				result.Categories = append(result.Categories, s)
			}
		}
	}

	if result.ReceiptID == "" {
		log.Printf("algolia: skipping hit with no objectID")
		return Result{}, false
	}

	return result, true
}
