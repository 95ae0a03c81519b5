package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/attribution"
)

// GeminiOracle guesses per-item taxability with Gemini when arithmetic
// attribution fails. It implements attribution.TaxOracle.
type GeminiOracle struct {
	client *GeminiClient
}

// NewGeminiOracle creates a Gemini-backed tax oracle.
func NewGeminiOracle(client *GeminiClient) *GeminiOracle {
	return &GeminiOracle{client: client}
}

// oracleItemForPrompt is a simplified item representation for the prompt.
type oracleItemForPrompt struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price,omitempty"`
}

// oracleRateForPrompt is a simplified tax rate representation for the prompt.
type oracleRateForPrompt struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Rate string `json:"rate,omitempty"`
}

// oracleResponse is the model's response schema.
type oracleResponse struct {
	Items []struct {
		ItemID string   `json:"item_id"`
		TaxIDs []string `json:"tax_ids"`
	} `json:"items"`
	ObservedRates []struct {
		ID   string  `json:"id"`
		Name string  `json:"name"`
		Rate float64 `json:"rate"`
	} `json:"observed_rates"`
}

// GuessTaxability asks the model which items each tax rate applied to.
func (o *GeminiOracle) GuessTaxability(ctx context.Context, req attribution.OracleRequest) (*attribution.OracleGuess, error) {
	var items []oracleItemForPrompt
	for _, it := range req.Items {
		p := oracleItemForPrompt{ID: it.ID, Name: it.Name}
		if it.Price != nil {
			p.Price = it.Price.String()
		}
		items = append(items, p)
	}
	var rates []oracleRateForPrompt
	for _, r := range req.Rates {
		p := oracleRateForPrompt{ID: r.ID, Name: r.Name}
		if r.Rate != nil {
			p.Rate = r.Rate.String()
		}
		rates = append(rates, p)
	}

	itemJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	rateJSON, err := json.Marshal(rates)
	if err != nil {
		return nil, fmt.Errorf("marshal rates: %w", err)
	}

	merchantCtx := ""
	if req.MerchantName != "" {
		merchantCtx = fmt.Sprintf("\nThe merchant is %q", req.MerchantName)
		if req.MerchantLocation != "" {
			merchantCtx += fmt.Sprintf(" in %q", req.MerchantLocation)
		}
		merchantCtx += ". Use local sales tax rules for that merchant type.\n"
	}

	prompt := fmt.Sprintf(`You are a sales tax expert. For each receipt item, decide which of the
listed tax rates applied to it. Typical rules: unprepared groceries are often
exempt, prepared food and general merchandise are usually taxed.
%s
Tax rates on the receipt:
%s

Items:
%s

Return ONLY a valid JSON object:
{
  "items": [{"item_id": "item_1", "tax_ids": ["rate id that applied"]}],
  "observed_rates": [{"id": "", "name": "rate you inferred but is not listed", "rate": 0.00}]
}
Rules:
- tax_ids must come from the listed rate ids. Use an empty list for untaxed items.
- Only add observed_rates for taxes you are confident apply but are missing
  from the list. rate is a fraction (0.0825), or 0 if unknown.`,
		merchantCtx, string(rateJSON), string(itemJSON))

	var resp oracleResponse
	if err := o.client.GenerateJSON(ctx, prompt, nil, &resp); err != nil {
		return nil, err
	}

	guess := &attribution.OracleGuess{
		ItemTaxIDs: make(map[string][]string, len(resp.Items)),
	}
	for _, it := range resp.Items {
		if len(it.TaxIDs) == 0 {
			continue
		}
		guess.ItemTaxIDs[it.ItemID] = it.TaxIDs
	}
	for _, r := range resp.ObservedRates {
		observed := attribution.TaxRate{
			ID:      strings.TrimSpace(r.ID),
			Name:    strings.TrimSpace(r.Name),
			Enabled: true,
		}
		if r.Rate > 0 && r.Rate <= 1 {
			d := decimal.NewFromFloat(r.Rate)
			observed.Rate = &d
		}
		guess.ObservedRates = append(guess.ObservedRates, observed)
	}
	return guess, nil
}
