package attribution

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/money"
)

// EstimatedRateID is the synthetic rate id used when the oracle reports a tax
// of unknown magnitude. At most one such rate exists per receipt; re-running
// escalation never creates a duplicate.
const EstimatedRateID = "estimated"

// DefaultToleranceCents bounds the tolerance sweep. Printed receipt tax
// totals are rounded per line before summation, so the true taxable subtotal
// can sit a few cents away from totalTax/rate; an unbounded sweep would risk
// false positives.
const DefaultToleranceCents = 5

const defaultOracleTimeout = 30 * time.Second

// TaxOracle is the heuristic classifier consulted only when the
// combinatorial tiers fail. Implementations must be safe to call repeatedly
// and are never trusted blindly: their output is merged against the
// caller-visible rate list.
type TaxOracle interface {
	GuessTaxability(ctx context.Context, req OracleRequest) (*OracleGuess, error)
}

// OracleRequest carries the full item list plus whatever merchant context is
// available.
type OracleRequest struct {
	Items            []LineItem
	Rates            []TaxRate
	MerchantName     string
	MerchantLocation string
}

// OracleGuess is the oracle's best-effort answer.
type OracleGuess struct {
	// ItemTaxIDs maps item id to the tax-rate ids the oracle believes apply.
	ItemTaxIDs map[string][]string
	// ObservedRates lists rates the oracle inferred. Rate is nil when the
	// magnitude is unknown.
	ObservedRates []TaxRate
}

// Engine runs the tier cascade. Tiers 1-3 are pure computation; tier 4 is
// the only suspension point and always runs under a timeout.
type Engine struct {
	oracle         TaxOracle
	toleranceCents int64
	oracleTimeout  time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOracle installs the tier-4 heuristic collaborator. Without one the
// engine degrades to Unresolved when the combinatorial tiers fail.
func WithOracle(o TaxOracle) EngineOption {
	return func(e *Engine) { e.oracle = o }
}

// WithTolerance overrides the sweep window in whole cents.
func WithTolerance(cents int64) EngineOption {
	return func(e *Engine) { e.toleranceCents = cents }
}

// WithOracleTimeout bounds the tier-4 call.
func WithOracleTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.oracleTimeout = d }
}

// NewEngine creates an attribution engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		toleranceCents: DefaultToleranceCents,
		oracleTimeout:  defaultOracleTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttributeTaxes produces an AttributionResult for the given items and tax
// summary. Tiers run in order and the first success wins; no tier is ever
// revisited. The inputs are never mutated: the result owns copies.
func (e *Engine) AttributeTaxes(ctx context.Context, items []LineItem, summary TaxSummary) AttributionResult {
	result := AttributionResult{
		Items: copyItems(items),
		Rates: append([]TaxRate(nil), summary.Rates...),
	}

	// Tier 1: no-tax short circuit.
	if isNoTax(summary) {
		result.ResolvedBy = ResolvedNoTax
		return result
	}

	// Tiers 2 and 3 apply only with exactly one usable rate and a known
	// positive total.
	if rate, ok := singleKnownRate(summary.Rates); ok && summary.TotalTax != nil && *summary.TotalTax > 0 {
		target := exactTarget(*summary.TotalTax, *rate.Rate)
		candidates := priceCandidates(result.Items)

		// Tier 2: exact resolution at the computed target.
		if ids, found := FindSubset(target, candidates); found {
			applyRate(result.Items, ids, rate.ID)
			result.ResolvedBy = ResolvedExactSubsetSum
			return result
		}

		// Tier 3: sweep nearby targets, closest first.
		for _, delta := range sweepDeltas(e.toleranceCents) {
			shifted := target + money.Money(delta)
			if shifted <= 0 {
				continue
			}
			if ids, found := FindSubset(shifted, candidates); found {
				applyRate(result.Items, ids, rate.ID)
				result.ResolvedBy = ResolvedToleratedSubsetSum
				return result
			}
		}
	}

	// Tier 4: oracle escalation.
	return e.escalate(ctx, result, summary)
}

// escalate consults the oracle and merges its answer. Any failure degrades
// to Unresolved; the receipt flow is never failed by an oracle problem.
func (e *Engine) escalate(ctx context.Context, result AttributionResult, summary TaxSummary) AttributionResult {
	result.ResolvedBy = ResolvedUnresolved
	if e.oracle == nil {
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	guess, err := e.oracle.GuessTaxability(ctx, OracleRequest{
		Items:            copyItems(result.Items),
		Rates:            append([]TaxRate(nil), result.Rates...),
		MerchantName:     summary.MerchantName,
		MerchantLocation: summary.MerchantLocation,
	})
	if err != nil {
		log.Printf("[TaxEngine] oracle escalation failed: %v", err)
		return result
	}
	if guess == nil || len(guess.ItemTaxIDs) == 0 {
		log.Printf("[TaxEngine] oracle returned no usable data")
		return result
	}

	rates := mergeObservedRates(result.Rates, guess.ObservedRates)

	// Attribute items, dropping any rate id the merged list does not carry.
	known := make(map[string]bool, len(rates))
	for _, r := range rates {
		known[r.ID] = true
	}
	attributed := false
	for i := range result.Items {
		ids := guess.ItemTaxIDs[result.Items[i].ID]
		var kept []string
		for _, id := range ids {
			if known[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			result.Items[i].AppliedTaxIDs = kept
			attributed = true
		}
	}
	if !attributed {
		return result
	}

	result.Rates = rates
	result.ResolvedBy = ResolvedOracle
	return result
}

// isNoTax reports whether the summary carries no tax: total absent or zero
// and no enabled rate with a known positive value.
func isNoTax(summary TaxSummary) bool {
	if summary.TotalTax != nil && *summary.TotalTax != 0 {
		return false
	}
	for _, r := range summary.Rates {
		if r.Enabled && r.Rate != nil && r.Rate.IsPositive() {
			return false
		}
	}
	return true
}

// singleKnownRate returns the sole enabled rate with a known positive value,
// if exactly one exists.
func singleKnownRate(rates []TaxRate) (TaxRate, bool) {
	var found TaxRate
	count := 0
	for _, r := range rates {
		if r.Enabled && r.Rate != nil && r.Rate.IsPositive() {
			found = r
			count++
		}
	}
	return found, count == 1
}

// exactTarget computes round(totalTax / rate) in cents, half away from zero.
func exactTarget(totalTax money.Money, rate decimal.Decimal) money.Money {
	return money.Money(decimal.NewFromInt(totalTax.Cents()).Div(rate).Round(0).IntPart())
}

// sweepDeltas lists the tolerance offsets to try after the exact target has
// already failed: +1, -1, +2, -2, ... so the candidate closest to the exact
// target wins ties.
func sweepDeltas(tolerance int64) []int64 {
	deltas := make([]int64, 0, 2*tolerance)
	for d := int64(1); d <= tolerance; d++ {
		deltas = append(deltas, d, -d)
	}
	return deltas
}

func priceCandidates(items []LineItem) []Candidate {
	candidates := make([]Candidate, 0, len(items))
	for _, it := range items {
		if it.Price == nil {
			continue
		}
		candidates = append(candidates, Candidate{ID: it.ID, Amount: *it.Price})
	}
	return candidates
}

func applyRate(items []LineItem, chosenIDs []string, rateID string) {
	chosen := make(map[string]bool, len(chosenIDs))
	for _, id := range chosenIDs {
		chosen[id] = true
	}
	for i := range items {
		if chosen[items[i].ID] {
			items[i].AppliedTaxIDs = []string{rateID}
		}
	}
}

// mergeObservedRates appends rates the oracle observed that the receipt does
// not already carry. Rates with no id (or an unknown magnitude and no id)
// collapse onto the single synthetic estimated rate.
func mergeObservedRates(existing []TaxRate, observed []TaxRate) []TaxRate {
	merged := append([]TaxRate(nil), existing...)
	seen := make(map[string]bool, len(merged))
	for _, r := range merged {
		seen[r.ID] = true
	}
	for _, r := range observed {
		if r.ID == "" {
			r.ID = EstimatedRateID
		}
		if r.ID == EstimatedRateID && r.Name == "" {
			r.Name = "Estimated tax"
		}
		if seen[r.ID] {
			continue
		}
		r.Enabled = true
		merged = append(merged, r)
		seen[r.ID] = true
	}
	return merged
}

func copyItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		out[i] = it
		out[i].AppliedTaxIDs = nil
		if it.Price != nil {
			p := *it.Price
			out[i].Price = &p
		}
	}
	return out
}
