package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kmorrill/receipt-budgeter/internal/attribution"
	"github.com/kmorrill/receipt-budgeter/internal/budget"
	"github.com/kmorrill/receipt-budgeter/internal/extraction"
	"github.com/kmorrill/receipt-budgeter/internal/money"
	"github.com/kmorrill/receipt-budgeter/internal/search"
	"github.com/kmorrill/receipt-budgeter/internal/store"
)

// maxUploadBytes caps receipt image uploads at 10 MB.
const maxUploadBytes = 10 << 20

// uncategorizedID is the category id reported for items the model could
// not place, matching the ledger's "no category" convention.
const uncategorizedID = "0"

// Router builds the HTTP routes. middlewares are applied to every route
// that mutates state; read-only routes stay open.
func (s *Service) Router(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleStatus)
	r.Get("/status", s.handleStatus)
	r.Get("/getBudgetInformation", s.handleGetBudgetInformation)
	r.Get("/receipts", s.handleListReceipts)
	r.Get("/receipts/{id}", s.handleGetReceipt)
	r.Get("/searchReceipts", s.handleSearchReceipts)

	r.Group(func(r chi.Router) {
		for _, mw := range middlewares {
			r.Use(mw)
		}
		r.Post("/analyzeReceipt", s.handleAnalyzeReceipt)
		r.Post("/submitReceipt", s.handleSubmitReceipt)
	})

	return r
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleGetBudgetInformation(w http.ResponseWriter, r *http.Request) {
	info, err := s.budget.GetBudgetInformation(r.Context())
	if err != nil {
		log.Printf("[Service] budget information fetch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch budget information")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// analyzedItemResponse is one line item in the analyzeReceipt response.
type analyzedItemResponse struct {
	ItemID             string   `json:"itemId"`
	ItemName           string   `json:"itemName"`
	Price              *float64 `json:"price,omitempty"`
	BudgetCategoryID   string   `json:"budgetCategoryId"`
	BudgetCategoryName string   `json:"budgetCategoryName"`
	AppliedTaxIDs      []string `json:"appliedTaxIds,omitempty"`
}

type receiptDataResponse struct {
	StoreName     string   `json:"storeName"`
	StoreLocation string   `json:"storeLocation,omitempty"`
	PurchaseDate  string   `json:"purchaseDate,omitempty"`
	Subtotal      *float64 `json:"subtotal,omitempty"`
	Tax           *float64 `json:"tax,omitempty"`
	Total         *float64 `json:"total,omitempty"`
	TaxRate       string   `json:"taxRate,omitempty"`
}

type attributionResponse struct {
	ResolvedBy string   `json:"resolvedBy"`
	Mismatches []string `json:"mismatches,omitempty"`
}

type categoryTotalResponse struct {
	CategoryID   string  `json:"categoryId"`
	CategoryName string  `json:"categoryName,omitempty"`
	Subtotal     float64 `json:"subtotal"`
	Tax          float64 `json:"tax"`
	Total        float64 `json:"total"`
	ItemCount    int     `json:"itemCount"`
}

type analyzeReceiptResponse struct {
	ReceiptID      string                  `json:"receiptId"`
	ReceiptData    receiptDataResponse     `json:"receiptData"`
	Items          []analyzedItemResponse  `json:"items"`
	Attribution    attributionResponse     `json:"attribution"`
	CategoryTotals []categoryTotalResponse `json:"categoryTotals"`
}

func (s *Service) handleAnalyzeReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !extraction.IsSupportedImage(mimeType) {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported file type %q, expected a png, jpeg, webp or heic image", mimeType))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	image := extraction.ImagePart{MIMEType: mimeType, Data: data}

	var overrideRate *decimal.Decimal
	if raw := r.FormValue("taxRate"); raw != "" {
		rate, err := money.ParseRate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid taxRate %q", raw))
			return
		}
		overrideRate = &rate
	}

	ctx := r.Context()

	// Budget lookup failure degrades to uncategorized items rather than
	// failing the whole analysis.
	var categories []budget.Category
	if info, err := s.budget.GetBudgetInformation(ctx); err != nil {
		log.Printf("[Service] budget information unavailable, items will be uncategorized: %v", err)
	} else {
		categories = info.AvailableCategories
	}
	categoryNames := make([]string, 0, len(categories))
	categoryIDByName := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames = append(categoryNames, c.Name)
		categoryIDByName[c.Name] = c.ID
	}

	var receipt *extraction.AnalyzedReceipt
	if s.testData {
		// Test-data mode skips the image model entirely so the endpoint
		// works without an API key. Attribution, reconciliation and
		// persistence still run against the canned receipt.
		receipt = testReceipt(categoryNames)
	} else {
		receipt, err = s.analyzer.AnalyzeReceipt(ctx, image, categoryNames)
		if err != nil {
			var analysisErr *extraction.AnalysisError
			if errors.As(err, &analysisErr) && analysisErr.Code == extraction.ErrUnsupportedMedia {
				writeError(w, http.StatusUnsupportedMediaType, analysisErr.Message)
				return
			}
			log.Printf("[Service] receipt analysis failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to analyze receipt")
			return
		}
	}

	categoryOf := func(itemID string) string {
		for _, it := range receipt.Items {
			if it.ID == itemID {
				if id, ok := categoryIDByName[it.CategoryGuess]; ok {
					return id
				}
				return ""
			}
		}
		return ""
	}

	result := s.engine.AttributeTaxes(ctx, attributionItems(receipt), taxSummaryFor(receipt, overrideRate))
	report := attribution.Reconcile(result, attribution.ReportedTotals{
		Subtotal: receipt.Subtotal,
		Tax:      receipt.Tax,
		Total:    receipt.Total,
	})
	totals := attribution.AggregateByCategory(result, categoryOf)

	doc := storedReceipt(receipt, result, report, categoryOf)
	if err := s.receipts.CreateReceipt(ctx, doc); err != nil {
		log.Printf("[Service] failed to persist receipt: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save receipt")
		return
	}
	if s.archiver != nil {
		if path, err := s.archiver.Archive(ctx, doc.ID, image); err != nil {
			log.Printf("[Service] failed to archive receipt image %s: %v", doc.ID, err)
		} else {
			doc.ImagePath = path
			if err := s.receipts.UpdateReceipt(ctx, doc); err != nil {
				log.Printf("[Service] failed to record image path for %s: %v", doc.ID, err)
			}
		}
	}
	s.indexReceipt(ctx, doc)

	writeJSON(w, http.StatusOK, s.analyzeResponse(doc, receipt, result, totals, categories))
}

func (s *Service) analyzeResponse(doc *store.Receipt, receipt *extraction.AnalyzedReceipt, result attribution.AttributionResult, totals []attribution.CategoryTotal, categories []budget.Category) analyzeReceiptResponse {
	categoryNameByID := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNameByID[c.ID] = c.Name
	}
	guessByID := make(map[string]string, len(receipt.Items))
	for _, it := range receipt.Items {
		guessByID[it.ID] = it.CategoryGuess
	}

	resp := analyzeReceiptResponse{
		ReceiptID: doc.ID,
		ReceiptData: receiptDataResponse{
			StoreName:     receipt.StoreName,
			StoreLocation: receipt.StoreLocation,
			PurchaseDate:  receipt.PurchaseDate,
			Subtotal:      dollarsPtr(receipt.Subtotal),
			Tax:           dollarsPtr(receipt.Tax),
			Total:         dollarsPtr(receipt.Total),
		},
		Attribution: attributionResponse{
			ResolvedBy: result.ResolvedBy.String(),
			Mismatches: doc.Mismatches,
		},
		Items:          []analyzedItemResponse{},
		CategoryTotals: []categoryTotalResponse{},
	}
	if receipt.TaxRate != nil {
		resp.ReceiptData.TaxRate = receipt.TaxRate.String()
	}

	for _, it := range result.Items {
		item := analyzedItemResponse{
			ItemID:             it.ID,
			ItemName:           it.Name,
			AppliedTaxIDs:      it.AppliedTaxIDs,
			BudgetCategoryID:   uncategorizedID,
			BudgetCategoryName: "Unknown",
		}
		if it.Price != nil {
			f := it.Price.Float64()
			item.Price = &f
		}
		for _, di := range doc.Items {
			if di.ID == it.ID && di.Category != "" {
				item.BudgetCategoryID = di.Category
				item.BudgetCategoryName = categoryNameByID[di.Category]
				break
			}
		}
		if item.BudgetCategoryID == uncategorizedID {
			if guess := guessByID[it.ID]; guess != "" {
				item.BudgetCategoryName = guess
			}
		}
		resp.Items = append(resp.Items, item)
	}

	for _, row := range totals {
		resp.CategoryTotals = append(resp.CategoryTotals, categoryTotalResponse{
			CategoryID:   row.CategoryID,
			CategoryName: categoryNameByID[row.CategoryID],
			Subtotal:     row.Subtotal.Float64(),
			Tax:          row.Tax.Float64(),
			Total:        row.Total.Float64(),
			ItemCount:    row.ItemCount,
		})
	}
	return resp
}

// submitSplit is one category split of a submitted receipt, in dollars.
type submitSplit struct {
	Amount     float64 `json:"amount"`
	CategoryID string  `json:"categoryId"`
	Notes      string  `json:"notes,omitempty"`
}

type submitReceiptRequest struct {
	AccountID string        `json:"accountId"`
	ReceiptID string        `json:"receiptId,omitempty"`
	Date      string        `json:"date,omitempty"`
	PayeeName string        `json:"payeeName,omitempty"`
	Subtotal  float64       `json:"subtotal"`
	Splits    []submitSplit `json:"splits"`
}

func (s *Service) handleSubmitReceipt(w http.ResponseWriter, r *http.Request) {
	var req submitReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}
	if len(req.Splits) == 0 {
		writeError(w, http.StatusBadRequest, "At least one split is required")
		return
	}

	subtotal := money.FromFloat(req.Subtotal)
	var sum money.Money
	subs := make([]budget.Subtransaction, 0, len(req.Splits))
	for _, split := range req.Splits {
		amount := money.FromFloat(split.Amount)
		sum = sum.Add(amount)
		subs = append(subs, budget.Subtransaction{
			Amount:     -amount.Cents(),
			CategoryID: split.CategoryID,
			Notes:      splitNotes(req.PayeeName, split.Notes),
		})
	}
	if diff := sum.Sub(subtotal).Cents(); diff > 1 || diff < -1 {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Split amounts (%s) do not add up to the subtotal (%s)", sum, subtotal))
		return
	}

	date := req.Date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	tx := budget.Transaction{
		Date:            date,
		Amount:          -sum.Cents(),
		PayeeName:       req.PayeeName,
		Subtransactions: subs,
	}

	ctx := r.Context()
	result, err := s.budget.ImportTransactions(ctx, req.AccountID, []budget.Transaction{tx})
	if err != nil {
		log.Printf("[Service] transaction import failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to import transaction into the budget")
		return
	}

	if req.ReceiptID != "" {
		if receipt, err := s.receipts.GetReceipt(ctx, req.ReceiptID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Printf("[Service] failed to load receipt %s after submit: %v", req.ReceiptID, err)
			}
		} else {
			receipt.Submitted = true
			if err := s.receipts.UpdateReceipt(ctx, receipt); err != nil {
				log.Printf("[Service] failed to mark receipt %s submitted: %v", req.ReceiptID, err)
			}
			s.indexReceipt(ctx, receipt)
		}
	}

	id := ""
	if len(result.Added) > 0 {
		id = result.Added[0]
	} else if len(result.Updated) > 0 {
		id = result.Updated[0]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

type listReceiptsResponse struct {
	Receipts      []*store.Receipt `json:"receipts"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func (s *Service) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	pageSize := int32(20)
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "pageSize must be between 1 and 100")
			return
		}
		pageSize = int32(n)
	}
	receipts, next, err := s.receipts.ListReceipts(r.Context(), pageSize, r.URL.Query().Get("pageToken"))
	if err != nil {
		if errors.Is(err, store.ErrBadPageToken) {
			writeError(w, http.StatusBadRequest, "Invalid page token")
			return
		}
		log.Printf("[Service] failed to list receipts: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}
	if receipts == nil {
		receipts = []*store.Receipt{}
	}
	writeJSON(w, http.StatusOK, listReceiptsResponse{Receipts: receipts, NextPageToken: next})
}

func (s *Service) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	receipt, err := s.receipts.GetReceipt(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		log.Printf("[Service] failed to load receipt %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to load receipt")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Service] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// indexReceipt keeps the search index in step with the store. Indexing
// failures are logged, never surfaced; the store stays authoritative.
func (s *Service) indexReceipt(ctx context.Context, receipt *store.Receipt) {
	if s.searcher == nil {
		return
	}
	if err := s.searcher.IndexReceipt(ctx, receipt); err != nil {
		log.Printf("[Service] failed to index receipt %s: %v", receipt.ID, err)
	}
}

func (s *Service) handleSearchReceipts(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Search is not configured")
		return
	}
	q := r.URL.Query()
	params := search.Params{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}
	if raw := q.Get("submitted"); raw != "" {
		submitted, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "submitted must be true or false")
			return
		}
		params.Submitted = &submitted
	}
	if raw := q.Get("totalMin"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil || min < 0 {
			writeError(w, http.StatusBadRequest, "totalMin must be a non-negative amount")
			return
		}
		params.TotalMin = min
	}
	if raw := q.Get("totalMax"); raw != "" {
		max, err := strconv.ParseFloat(raw, 64)
		if err != nil || max < 0 {
			writeError(w, http.StatusBadRequest, "totalMax must be a non-negative amount")
			return
		}
		params.TotalMax = max
	}
	if raw := q.Get("startDate"); raw != "" {
		start, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD")
			return
		}
		params.StartDate = &start
	}
	if raw := q.Get("endDate"); raw != "" {
		end, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "endDate must be YYYY-MM-DD")
			return
		}
		params.EndDate = &end
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		params.Page = page
	}
	if raw := q.Get("pageSize"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil || pageSize <= 0 || pageSize > 100 {
			writeError(w, http.StatusBadRequest, "pageSize must be between 1 and 100")
			return
		}
		params.PageSize = pageSize
	}

	resp, err := s.searcher.SearchReceipts(r.Context(), params)
	if err != nil {
		log.Printf("[Service] receipt search failed: %v", err)
		writeError(w, http.StatusBadGateway, "Search is currently unavailable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
