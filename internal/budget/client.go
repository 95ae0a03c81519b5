// Package budget is an HTTP client for the Actual-style budget ledger.
package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const budgetInfoCacheKey = "budget_information"

// Category is a budget category the ledger knows about.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Account is a ledger account receipts can be imported into.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Information is the ledger state the client exposes to receipt analysis.
type Information struct {
	AvailableCategories []Category `json:"availableCategories"`
	Accounts            []Account  `json:"accounts"`
}

// Subtransaction is one split of an imported transaction. Amounts are in
// cents, negative for outflows.
type Subtransaction struct {
	Amount     int64  `json:"amount"`
	CategoryID string `json:"category,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Transaction is a ledger transaction to import. Amounts are in cents,
// negative for outflows, matching the ledger's convention.
type Transaction struct {
	Date            string           `json:"date"` // YYYY-MM-DD
	Amount          int64            `json:"amount"`
	PayeeName       string           `json:"payee_name,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	CategoryID      string           `json:"category,omitempty"`
	Subtransactions []Subtransaction `json:"subtransactions,omitempty"`
}

// ImportResult reports what the ledger did with an import batch.
type ImportResult struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// Client talks to the budget ledger server.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
	cache      *gocache.Cache
	testData   bool
}

// Option configures a Client.
type Option func(*Client)

// WithTestData makes the client serve fixture data without touching the
// ledger, for local development.
func WithTestData(enabled bool) Option {
	return func(c *Client) { c.testData = enabled }
}

// WithCacheTTL overrides how long budget information responses are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = gocache.New(ttl, 2*ttl) }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a budget ledger client.
func NewClient(baseURL, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBudgetInformation returns the ledger's categories and accounts.
// Responses are cached for the configured TTL since the ledger round trip
// is slow and category lists change rarely.
func (c *Client) GetBudgetInformation(ctx context.Context) (*Information, error) {
	if c.testData {
		return testInformation(), nil
	}
	if cached, ok := c.cache.Get(budgetInfoCacheKey); ok {
		return cached.(*Information), nil
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("budget server URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/budget", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("budget information failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var info Information
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.cache.Set(budgetInfoCacheKey, &info, gocache.DefaultExpiration)
	return &info, nil
}

// ImportTransactions sends a batch of transactions to the ledger. The ledger
// applies its own rules and dedupe on import.
func (c *Client) ImportTransactions(ctx context.Context, accountID string, txs []Transaction) (*ImportResult, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	if c.testData {
		result := &ImportResult{}
		for range txs {
			result.Added = append(result.Added, "test-transaction")
		}
		return result, nil
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("budget server URL not configured")
	}

	payload := struct {
		Transactions []Transaction `json:"transactions"`
	}{Transactions: txs}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transactions: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/transactions/import", c.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("import failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result ImportResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.password != "" {
		req.Header.Set("X-Actual-Password", c.password)
	}
}

// testInformation is the fixture ledger used when test data mode is enabled.
func testInformation() *Information {
	return &Information{
		AvailableCategories: []Category{
			{ID: "exampleCategory1", Name: "Example Category 1"},
			{ID: "exampleCategory2", Name: "Example Category 2"},
		},
		Accounts: []Account{
			{ID: "exampleAccount1", Name: "Example Account 1"},
			{ID: "exampleAccount2", Name: "Example Account 2"},
		},
	}
}
