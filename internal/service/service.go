// Package service wires receipt analysis, tax attribution and the budget
// ledger behind an HTTP API.
package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/attribution"
	"github.com/kmorrill/receipt-budgeter/internal/budget"
	"github.com/kmorrill/receipt-budgeter/internal/extraction"
	"github.com/kmorrill/receipt-budgeter/internal/money"
	"github.com/kmorrill/receipt-budgeter/internal/search"
	"github.com/kmorrill/receipt-budgeter/internal/store"
)

// salesTaxRateID names the single implicit rate used when a receipt shows
// a tax figure but no named rates. The magnitude may stay unknown, in
// which case attribution escalates to the oracle.
const salesTaxRateID = "sales_tax"

// ReceiptAnalyzer extracts structured receipt data from an image.
type ReceiptAnalyzer interface {
	AnalyzeReceipt(ctx context.Context, image extraction.ImagePart, categories []string) (*extraction.AnalyzedReceipt, error)
}

// BudgetProvider exposes the ledger operations the service needs.
type BudgetProvider interface {
	GetBudgetInformation(ctx context.Context) (*budget.Information, error)
	ImportTransactions(ctx context.Context, accountID string, txs []budget.Transaction) (*budget.ImportResult, error)
}

// ImageArchiver persists the uploaded receipt image and returns its
// storage path.
type ImageArchiver interface {
	Archive(ctx context.Context, receiptID string, image extraction.ImagePart) (string, error)
}

// ReceiptSearcher maintains the receipt search index.
type ReceiptSearcher interface {
	IndexReceipt(ctx context.Context, receipt *store.Receipt) error
	SearchReceipts(ctx context.Context, params search.Params) (*search.Response, error)
}

// Service handles receipt analysis and submission requests.
type Service struct {
	analyzer ReceiptAnalyzer
	budget   BudgetProvider
	receipts store.Store
	engine   *attribution.Engine
	archiver ImageArchiver
	searcher ReceiptSearcher
	testData bool
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithArchiver enables receipt image archival.
func WithArchiver(a ImageArchiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithSearch enables receipt search indexing.
func WithSearch(searcher ReceiptSearcher) ServiceOption {
	return func(s *Service) { s.searcher = searcher }
}

// WithTestData makes analysis answer with a canned receipt instead of
// calling the image analyzer, so local development works without an API
// key. Everything downstream of extraction still runs for real.
func WithTestData(enabled bool) ServiceOption {
	return func(s *Service) { s.testData = enabled }
}

// NewService creates the receipt service.
func NewService(analyzer ReceiptAnalyzer, budgetClient BudgetProvider, receipts store.Store, engine *attribution.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		analyzer: analyzer,
		budget:   budgetClient,
		receipts: receipts,
		engine:   engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// testReceipt is the canned analysis result served when test data is
// enabled. Item guesses pick from the caller's category names so the
// fixture comes back categorized against whatever budget is configured.
func testReceipt(categoryNames []string) *extraction.AnalyzedReceipt {
	guess := func(i int) string {
		if len(categoryNames) == 0 {
			return ""
		}
		return categoryNames[i%len(categoryNames)]
	}
	rate := decimal.NewFromFloat(0.06)
	return &extraction.AnalyzedReceipt{
		StoreName:     "Corner Grocery",
		StoreLocation: "123 Woodward Ave, Detroit",
		PurchaseDate:  "2026-01-15",
		Subtotal:      amountPtr(6.00),
		Tax:           amountPtr(0.36),
		Total:         amountPtr(6.36),
		TaxRate:       &rate,
		Items: []extraction.AnalyzedItem{
			{ID: "item_1", Name: "2% Reduced Fat Milk", Price: amountPtr(3.50), CategoryGuess: guess(0)},
			{ID: "item_2", Name: "Whole Grain Loaf", Price: amountPtr(2.50), CategoryGuess: guess(1)},
		},
	}
}

func amountPtr(dollars float64) *money.Money {
	m := money.FromFloat(dollars)
	return &m
}

// taxSummaryFor derives the engine's tax summary from an analyzed receipt.
// overrideRate, when non-nil, replaces whatever rate the receipt printed.
func taxSummaryFor(receipt *extraction.AnalyzedReceipt, overrideRate *decimal.Decimal) attribution.TaxSummary {
	summary := attribution.TaxSummary{
		TotalTax:         receipt.Tax,
		MerchantName:     receipt.StoreName,
		MerchantLocation: receipt.StoreLocation,
	}
	rate := receipt.TaxRate
	if overrideRate != nil {
		rate = overrideRate
	}
	if receipt.Tax != nil && receipt.Tax.Cents() != 0 {
		summary.Rates = []attribution.TaxRate{{
			ID:      salesTaxRateID,
			Name:    "Sales Tax",
			Rate:    rate,
			Enabled: true,
		}}
	}
	return summary
}

// attributionItems converts analyzed items into engine line items.
func attributionItems(receipt *extraction.AnalyzedReceipt) []attribution.LineItem {
	items := make([]attribution.LineItem, 0, len(receipt.Items))
	for _, it := range receipt.Items {
		items = append(items, attribution.LineItem{
			ID:    it.ID,
			Name:  it.Name,
			Price: it.Price,
		})
	}
	return items
}

// storedReceipt assembles the persistence document for an analyzed receipt.
func storedReceipt(receipt *extraction.AnalyzedReceipt, result attribution.AttributionResult, report attribution.ReconciliationReport, categoryOf func(itemID string) string) *store.Receipt {
	doc := &store.Receipt{
		StoreName:     receipt.StoreName,
		StoreLocation: receipt.StoreLocation,
		PurchaseDate:  receipt.PurchaseDate,
		SubtotalCents: centsPtr(receipt.Subtotal),
		TaxCents:      centsPtr(receipt.Tax),
		TotalCents:    centsPtr(receipt.Total),
		ResolvedBy:    result.ResolvedBy.String(),
	}
	for _, it := range result.Items {
		doc.Items = append(doc.Items, store.ReceiptItem{
			ID:            it.ID,
			Name:          it.Name,
			PriceCents:    centsPtr(it.Price),
			AppliedTaxIDs: it.AppliedTaxIDs,
			Category:      categoryOf(it.ID),
		})
	}
	for _, r := range result.Rates {
		rate := ""
		if r.Rate != nil {
			rate = r.Rate.String()
		}
		doc.Rates = append(doc.Rates, store.ReceiptRate{
			ID:      r.ID,
			Name:    r.Name,
			Rate:    rate,
			Enabled: r.Enabled,
		})
	}
	for _, kind := range report.Mismatches {
		doc.Mismatches = append(doc.Mismatches, kind.String())
	}
	return doc
}

func centsPtr(m *money.Money) *int64 {
	if m == nil {
		return nil
	}
	c := m.Cents()
	return &c
}

func dollarsPtr(m *money.Money) *float64 {
	if m == nil {
		return nil
	}
	f := m.Float64()
	return &f
}

// splitNotes builds a short per-split memo line.
func splitNotes(storeName string, notes string) string {
	if notes != "" {
		return notes
	}
	if storeName == "" {
		return "Receipt import"
	}
	return fmt.Sprintf("Receipt from %s", storeName)
}
