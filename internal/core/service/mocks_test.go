package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

// Mock ClinicBackend
type mockBackend struct {
	mu sync.Mutex

	clinics    []domain.Clinic
	items      []domain.InventoryItem
	serials    map[int][]string
	clinicsErr error
	itemsErr   error
	serialsErr error
	createErr  error
	message    string

	// release, when set, blocks CreateTransfer until it is closed
	release chan struct{}
	entered chan struct{}

	requests []domain.TransferRequest
	keys     []string
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		clinics: []domain.Clinic{
			{ID: 1, Name: "Main Store", IsMainInventory: true},
			{ID: 3, Name: "City Hearing Clinic"},
			{ID: 4, Name: "North Clinic"},
		},
		items: []domain.InventoryItem{
			{ID: 7, StockType: domain.StockTypeBulk, AvailableStock: 5, DisplayName: "Batteries", UnitPrice: decimal.NewFromInt(2)},
			{ID: 8, StockType: domain.StockTypeBulk, AvailableStock: 0, DisplayName: "Domes"},
			{ID: 9, StockType: domain.StockTypeSerialized, DisplayName: "Hearing Aid", UnitPrice: decimal.NewFromInt(500)},
		},
		serials: map[int][]string{9: {"SN1", "SN2", "SN3"}},
	}
}

func (m *mockBackend) ListClinics(ctx context.Context) ([]domain.Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clinicsErr != nil {
		return nil, m.clinicsErr
	}
	return m.clinics, nil
}

func (m *mockBackend) ListTransferableItems(ctx context.Context) ([]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}
	return m.items, nil
}

func (m *mockBackend) ListAvailableSerials(ctx context.Context, itemID int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serialsErr != nil {
		return nil, m.serialsErr
	}
	return append([]string(nil), m.serials[itemID]...), nil
}

func (m *mockBackend) CreateTransfer(ctx context.Context, req domain.TransferRequest, key string) (*domain.Confirmation, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.keys = append(m.keys, key)
	release, entered := m.release, m.entered
	err, msg := m.createErr, m.message
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.Confirmation{Message: msg, TransferredCount: len(req.Products)}, nil
}

func (m *mockBackend) postCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Mock CacheRepository
type mockCache struct {
	mu             sync.Mutex
	drafts         map[string]domain.Draft
	idempotencySet map[string]bool
	released       []string
}

func newMockCache() *mockCache {
	return &mockCache{
		drafts:         make(map[string]domain.Draft),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCache) SaveDraft(ctx context.Context, draft domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draft.SessionID] = draft
	return nil
}

func (m *mockCache) LoadDraft(ctx context.Context, sessionID string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[sessionID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *mockCache) DeleteDraft(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, sessionID)
	return nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	m.released = append(m.released, key)
	return nil
}

func (m *mockCache) hasDraft(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[id]
	return ok
}

// Mock DatabaseRepository
type mockHistory struct {
	mu        sync.Mutex
	records   []domain.TransferRecord
	lastLimit int
}

func (m *mockHistory) RecordTransfer(ctx context.Context, rec domain.TransferRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockHistory) ListTransfers(ctx context.Context, limit int) ([]domain.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	out := make([]domain.TransferRecord, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// staticRefs is a fixed ReferenceSource.
type staticRefs struct {
	data *ReferenceData
}

func (s staticRefs) Current() *ReferenceData {
	return s.data
}

func loadedRefs(b *mockBackend) staticRefs {
	return staticRefs{data: NewReferenceData(b.clinics, b.items)}
}
