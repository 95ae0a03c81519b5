package extraction

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/money"
)

// AnalyzedItem is a single line item read off a receipt image.
type AnalyzedItem struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Price         *money.Money `json:"price,omitempty"`
	CategoryGuess string       `json:"category_guess,omitempty"`
}

// AnalyzedReceipt is the structured result of receipt image analysis.
type AnalyzedReceipt struct {
	StoreName     string           `json:"store_name"`
	StoreLocation string           `json:"store_location,omitempty"`
	PurchaseDate  string           `json:"purchase_date,omitempty"` // YYYY-MM-DD
	Subtotal      *money.Money     `json:"subtotal,omitempty"`
	Tax           *money.Money     `json:"tax,omitempty"`
	Total         *money.Money     `json:"total,omitempty"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	Items         []AnalyzedItem   `json:"items"`
}

// Analyzer extracts receipt fields and item category guesses from an image
// in two Gemini passes.
type Analyzer struct {
	client *GeminiClient
}

// NewAnalyzer creates a receipt analyzer backed by the given Gemini client.
func NewAnalyzer(client *GeminiClient) *Analyzer {
	return &Analyzer{client: client}
}

// receiptFields is the pass-1 response schema.
type receiptFields struct {
	StoreName     string  `json:"store_name"`
	StoreLocation string  `json:"store_location"`
	PurchaseDate  string  `json:"purchase_date"`
	Subtotal      float64 `json:"subtotal"`
	Tax           float64 `json:"tax"`
	Total         float64 `json:"total"`
	TaxRate       float64 `json:"tax_rate"`
	Items         []struct {
		ID    string  `json:"id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	} `json:"items"`
}

// categoryGuesses is the pass-2 response schema.
type categoryGuesses struct {
	Guesses []struct {
		ItemID   string `json:"item_id"`
		Category string `json:"category"`
	} `json:"guesses"`
}

// AnalyzeReceipt runs the two-pass analysis: first receipt fields and line
// items from the image, then a per-item budget category guess against the
// caller's category list. Pass-2 failure degrades to uncategorized items.
func (a *Analyzer) AnalyzeReceipt(ctx context.Context, image ImagePart, categories []string) (*AnalyzedReceipt, error) {
	if !IsSupportedImage(image.MIMEType) {
		return nil, &AnalysisError{
			Code:    ErrUnsupportedMedia,
			Message: fmt.Sprintf("unsupported image type %q", image.MIMEType),
		}
	}

	fields, err := a.extractFields(ctx, image)
	if err != nil {
		return nil, err
	}

	receipt := fieldsToReceipt(fields)
	if len(receipt.Items) == 0 {
		return nil, &AnalysisError{
			Code:    ErrNoItemsFound,
			Message: "no line items found on receipt",
		}
	}

	if len(categories) > 0 {
		if err := a.guessCategories(ctx, receipt, categories); err != nil {
			log.Printf("[Analyzer] category guessing failed, leaving items uncategorized: %v", err)
		}
	}

	return receipt, nil
}

func (a *Analyzer) extractFields(ctx context.Context, image ImagePart) (*receiptFields, error) {
	prompt := `You are a receipt reader. Extract the receipt's fields from this image.
Return ONLY a valid JSON object with this structure:
{
  "store_name": "merchant name as printed",
  "store_location": "city/suburb if printed, else empty",
  "purchase_date": "YYYY-MM-DD or empty if not printed",
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "tax_rate": 0.00,
  "items": [
    {"id": "item_1", "name": "item name as printed", "price": 0.00}
  ]
}
Rules:
- List every purchased line item with its price. Exclude subtotal/tax/total lines.
- Apply per-line discounts to the item's price.
- Express all amounts as positive decimal numbers.
- tax_rate is the printed percentage (e.g. 8.25) or 0 if not printed.
- Use 0 for any amount that is not printed on the receipt.`

	var fields receiptFields
	if err := a.client.GenerateJSON(ctx, prompt, &image, &fields); err != nil {
		return nil, err
	}
	return &fields, nil
}

func (a *Analyzer) guessCategories(ctx context.Context, receipt *AnalyzedReceipt, categories []string) error {
	var lines []string
	for _, it := range receipt.Items {
		lines = append(lines, fmt.Sprintf("%s: %s", it.ID, it.Name))
	}

	prompt := fmt.Sprintf(`Assign each receipt item to the best-fitting budget category.
The store is %q. Available categories (use these exact names):
%s

Items:
%s

Return ONLY a valid JSON object:
{"guesses": [{"item_id": "item_1", "category": "exact category name"}]}
Omit an item if no category fits.`,
		receipt.StoreName,
		strings.Join(categories, "\n"),
		strings.Join(lines, "\n"))

	var guesses categoryGuesses
	if err := a.client.GenerateJSON(ctx, prompt, nil, &guesses); err != nil {
		return err
	}

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c] = true
	}
	guessByItem := make(map[string]string, len(guesses.Guesses))
	for _, g := range guesses.Guesses {
		if known[g.Category] {
			guessByItem[g.ItemID] = g.Category
		}
	}
	for i := range receipt.Items {
		receipt.Items[i].CategoryGuess = guessByItem[receipt.Items[i].ID]
	}
	return nil
}

// fieldsToReceipt converts the model's float amounts to cents and assigns
// stable item_N ids where the model omitted or duplicated them.
func fieldsToReceipt(fields *receiptFields) *AnalyzedReceipt {
	receipt := &AnalyzedReceipt{
		StoreName:     FormatStoreName(fields.StoreName),
		StoreLocation: strings.TrimSpace(fields.StoreLocation),
		PurchaseDate:  strings.TrimSpace(fields.PurchaseDate),
		Subtotal:      optionalAmount(fields.Subtotal),
		Tax:           optionalAmount(fields.Tax),
		Total:         optionalAmount(fields.Total),
		TaxRate:       optionalRate(fields.TaxRate),
	}

	seen := make(map[string]bool, len(fields.Items))
	for i, it := range fields.Items {
		id := strings.TrimSpace(it.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("item_%d", i+1)
		}
		seen[id] = true
		receipt.Items = append(receipt.Items, AnalyzedItem{
			ID:    id,
			Name:  strings.TrimSpace(it.Name),
			Price: optionalAmount(it.Price),
		})
	}
	return receipt
}

// optionalAmount maps the model's 0-means-absent convention to a nil Money.
func optionalAmount(f float64) *money.Money {
	if f == 0 {
		return nil
	}
	m := money.FromFloat(f)
	return &m
}

// optionalRate normalizes a printed percentage to a fraction, nil if absent
// or out of range.
func optionalRate(f float64) *decimal.Decimal {
	if f <= 0 {
		return nil
	}
	d := decimal.NewFromFloat(f)
	if d.GreaterThan(decimal.NewFromInt(1)) {
		d = d.Div(decimal.NewFromInt(100))
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return nil
	}
	return &d
}
