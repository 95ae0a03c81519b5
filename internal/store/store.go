// Package store persists analyzed receipts.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrBadPageToken is returned when a page token cannot be decoded.
var ErrBadPageToken = errors.New("invalid page token")

// ErrNotFound is returned when a receipt id does not exist.
var ErrNotFound = errors.New("receipt not found")

// ReceiptItem is a persisted receipt line item.
type ReceiptItem struct {
	ID            string   `firestore:"id" json:"id"`
	Name          string   `firestore:"name" json:"name"`
	PriceCents    *int64   `firestore:"priceCents" json:"priceCents,omitempty"`
	AppliedTaxIDs []string `firestore:"appliedTaxIds" json:"appliedTaxIds,omitempty"`
	Category      string   `firestore:"category" json:"category,omitempty"`
}

// ReceiptRate is a persisted tax rate. Rate is a decimal string ("0.0825"),
// empty when the magnitude is unknown.
type ReceiptRate struct {
	ID      string `firestore:"id" json:"id"`
	Name    string `firestore:"name" json:"name,omitempty"`
	Rate    string `firestore:"rate" json:"rate,omitempty"`
	Enabled bool   `firestore:"enabled" json:"enabled"`
}

// Receipt is an analyzed receipt document.
type Receipt struct {
	ID            string        `firestore:"id" json:"id"`
	StoreName     string        `firestore:"storeName" json:"storeName"`
	StoreLocation string        `firestore:"storeLocation" json:"storeLocation,omitempty"`
	PurchaseDate  string        `firestore:"purchaseDate" json:"purchaseDate,omitempty"`
	SubtotalCents *int64        `firestore:"subtotalCents" json:"subtotalCents,omitempty"`
	TaxCents      *int64        `firestore:"taxCents" json:"taxCents,omitempty"`
	TotalCents    *int64        `firestore:"totalCents" json:"totalCents,omitempty"`
	Items         []ReceiptItem `firestore:"items" json:"items"`
	Rates         []ReceiptRate `firestore:"rates" json:"rates,omitempty"`
	ResolvedBy    string        `firestore:"resolvedBy" json:"resolvedBy"`
	Mismatches    []string      `firestore:"mismatches" json:"mismatches,omitempty"`
	ImagePath     string        `firestore:"imagePath" json:"imagePath,omitempty"`
	Submitted     bool          `firestore:"submitted" json:"submitted"`
	CreatedAt     time.Time     `firestore:"createdAt" json:"createdAt"`
}

// Store defines receipt persistence operations.
type Store interface {
	CreateReceipt(ctx context.Context, receipt *Receipt) error
	GetReceipt(ctx context.Context, id string) (*Receipt, error)
	UpdateReceipt(ctx context.Context, receipt *Receipt) error
	// ListReceipts returns receipts newest first, with cursor pagination.
	ListReceipts(ctx context.Context, pageSize int32, pageToken string) ([]*Receipt, string, error)
}

// EncodePageToken encodes a document ID as an opaque page token.
func EncodePageToken(id string) string {
	return base64.StdEncoding.EncodeToString([]byte(id))
}

// DecodePageToken decodes an opaque page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPageToken, err)
	}
	return string(b), nil
}
