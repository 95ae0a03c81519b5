package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory storage. Entries older than
// the TTL are swept by a background goroutine, like the dev deployments this
// store backs.
type MemoryStore struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
	ttl      time.Duration
	done     chan struct{}
}

// NewMemoryStore creates an in-memory receipt store. A zero ttl disables
// the background sweep.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	m := &MemoryStore{
		receipts: make(map[string]*Receipt),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanup()
	}
	return m
}

// Stop signals the background sweep goroutine to exit.
func (m *MemoryStore) Stop() {
	close(m.done)
}

func (m *MemoryStore) CreateReceipt(ctx context.Context, receipt *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	stored := *receipt
	m.receipts[receipt.ID] = &stored
	return nil
}

func (m *MemoryStore) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	receipt, ok := m.receipts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *receipt
	return &out, nil
}

func (m *MemoryStore) UpdateReceipt(ctx context.Context, receipt *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.receipts[receipt.ID]; !ok {
		return ErrNotFound
	}
	stored := *receipt
	m.receipts[receipt.ID] = &stored
	return nil
}

func (m *MemoryStore) ListReceipts(ctx context.Context, pageSize int32, pageToken string) ([]*Receipt, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if pageSize <= 0 {
		pageSize = 100
	}

	all := make([]*Receipt, 0, len(m.receipts))
	for _, r := range m.receipts {
		all = append(all, r)
	}
	// Newest first; ID breaks ties so the cursor is stable.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		for i, r := range all {
			if r.ID == cursorID {
				startIdx = i + 1
				break
			}
		}
	}
	all = all[startIdx:]

	var nextToken string
	if int32(len(all)) > pageSize {
		nextToken = EncodePageToken(all[pageSize-1].ID)
		all = all[:pageSize]
	}

	out := make([]*Receipt, len(all))
	for i, r := range all {
		copied := *r
		out[i] = &copied
	}
	return out, nextToken, nil
}

func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for id, r := range m.receipts {
				if now.Sub(r.CreatedAt) > m.ttl {
					delete(m.receipts, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
