package budget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBudgetInformation(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/budget", r.URL.Path)
		assert.Equal(t, "hunter2", r.Header.Get("X-Actual-Password"))
		json.NewEncoder(w).Encode(Information{
			AvailableCategories: []Category{{ID: "groceries", Name: "Groceries"}},
			Accounts:            []Account{{ID: "checking", Name: "Checking"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "hunter2")
	info, err := client.GetBudgetInformation(context.Background())
	require.NoError(t, err)
	require.Len(t, info.AvailableCategories, 1)
	assert.Equal(t, "Groceries", info.AvailableCategories[0].Name)
	require.Len(t, info.Accounts, 1)
	assert.Equal(t, "checking", info.Accounts[0].ID)

	// Second call should be served from cache.
	_, err = client.GetBudgetInformation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGetBudgetInformation_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ledger is down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.GetBudgetInformation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestGetBudgetInformation_TestData(t *testing.T) {
	client := NewClient("", "", WithTestData(true))
	info, err := client.GetBudgetInformation(context.Background())
	require.NoError(t, err)
	require.Len(t, info.AvailableCategories, 2)
	assert.Equal(t, "exampleCategory1", info.AvailableCategories[0].ID)
	require.Len(t, info.Accounts, 2)
}

func TestGetBudgetInformation_NoServerConfigured(t *testing.T) {
	client := NewClient("", "")
	_, err := client.GetBudgetInformation(context.Background())
	require.Error(t, err)
}

func TestImportTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts/checking/transactions/import", r.URL.Path)

		var payload struct {
			Transactions []Transaction `json:"transactions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Transactions, 1)
		tx := payload.Transactions[0]
		assert.Equal(t, int64(-4880), tx.Amount)
		assert.Equal(t, "Whole Foods Mkt", tx.PayeeName)
		require.Len(t, tx.Subtransactions, 2)
		assert.Equal(t, int64(-600), tx.Subtransactions[0].Amount)

		json.NewEncoder(w).Encode(ImportResult{Added: []string{"tx-1"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "hunter2")
	result, err := client.ImportTransactions(context.Background(), "checking", []Transaction{
		{
			Date:      "2026-03-14",
			Amount:    -4880,
			PayeeName: "Whole Foods Mkt",
			Subtransactions: []Subtransaction{
				{Amount: -600, CategoryID: "groceries"},
				{Amount: -4280, CategoryID: "household"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-1"}, result.Added)
}

func TestImportTransactions_RequiresAccount(t *testing.T) {
	client := NewClient("http://localhost:1", "")
	_, err := client.ImportTransactions(context.Background(), "", nil)
	require.Error(t, err)
}

func TestImportTransactions_TestData(t *testing.T) {
	client := NewClient("", "", WithTestData(true))
	result, err := client.ImportTransactions(context.Background(), "exampleAccount1", []Transaction{{Amount: -100}})
	require.NoError(t, err)
	assert.Len(t, result.Added, 1)
}
