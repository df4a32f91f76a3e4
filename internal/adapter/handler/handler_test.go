package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/core/service"
)

// Mock ClinicBackend
type mockBackend struct {
	mu        sync.Mutex
	clinics   []domain.Clinic
	items     []domain.InventoryItem
	serials   []string
	createErr error
	requests  []domain.TransferRequest
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		clinics: []domain.Clinic{
			{ID: 1, Name: "Main Warehouse", IsMainInventory: true},
			{ID: 3, Name: "City Hearing Clinic"},
		},
		items: []domain.InventoryItem{
			{ID: 7, StockType: domain.StockTypeBulk, AvailableStock: 5, DisplayName: "Domes", UnitPrice: decimal.NewFromInt(2)},
			{ID: 9, StockType: domain.StockTypeSerialized, DisplayName: "Aid X", UnitPrice: decimal.NewFromInt(500)},
		},
		serials: []string{"SN1", "SN2"},
	}
}

func (m *mockBackend) ListClinics(ctx context.Context) ([]domain.Clinic, error) {
	return m.clinics, nil
}

func (m *mockBackend) ListTransferableItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return m.items, nil
}

func (m *mockBackend) ListAvailableSerials(ctx context.Context, itemID int) ([]string, error) {
	return m.serials, nil
}

func (m *mockBackend) CreateTransfer(ctx context.Context, req domain.TransferRequest, key string) (*domain.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.requests = append(m.requests, req)
	return &domain.Confirmation{TransferredCount: len(req.Products)}, nil
}

type testServer struct {
	backend *mockBackend
	loader  *service.ReferenceLoader
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := newMockBackend()
	loader := service.NewReferenceLoader(backend, nil, nil)
	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	transfers := service.NewTransferService(backend, loader, nil, nil, nil, nil)
	sessions := service.NewSessionService(loader, transfers, backend, nil, nil, nil)
	h := NewHTTPHandler(sessions, loader, transfers, nil)
	return &testServer{backend: backend, loader: loader, router: h.Routes(nil)}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (s *testServer) open(t *testing.T) string {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	return sess.ID
}

func decodeSession(t *testing.T, env envelope) sessionResponse {
	t.Helper()
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	return sess
}
