package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const receiptCollection = "receipts"

// FirestoreStore implements Store using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a Firestore-backed receipt store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) CreateReceipt(ctx context.Context, receipt *Receipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	_, err := s.client.Collection(receiptCollection).Doc(receipt.ID).Set(ctx, receipt)
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	doc, err := s.client.Collection(receiptCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	var receipt Receipt
	if err := doc.DataTo(&receipt); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	return &receipt, nil
}

func (s *FirestoreStore) UpdateReceipt(ctx context.Context, receipt *Receipt) error {
	if _, err := s.GetReceipt(ctx, receipt.ID); err != nil {
		return err
	}
	_, err := s.client.Collection(receiptCollection).Doc(receipt.ID).Set(ctx, receipt)
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	return nil
}

// ListReceipts pages through receipts newest first. Firestore needs the
// cursor document's CreatedAt for a composite StartAfter on a desc order.
func (s *FirestoreStore) ListReceipts(ctx context.Context, pageSize int32, pageToken string) ([]*Receipt, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	query := s.client.Collection(receiptCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		cursorDoc, err := s.client.Collection(receiptCollection).Doc(docID).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("fetch cursor document: %w", err)
		}
		query = query.StartAfter(cursorDoc.Data()["createdAt"], docID)
	}

	iter := query.Limit(int(pageSize) + 1).Documents(ctx)
	defer iter.Stop()

	var receipts []*Receipt
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("iterate receipts: %w", err)
		}
		var receipt Receipt
		if err := doc.DataTo(&receipt); err != nil {
			return nil, "", fmt.Errorf("parse receipt: %w", err)
		}
		receipts = append(receipts, &receipt)
	}

	var nextToken string
	if int32(len(receipts)) > pageSize {
		receipts = receipts[:pageSize]
		nextToken = EncodePageToken(receipts[len(receipts)-1].ID)
	}
	return receipts, nextToken, nil
}
