package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(Config{
		BaseURL:            srv.URL + "/api/",
		Token:              "secret",
		Timeout:            2 * time.Second,
		ClinicsPath:        "accounts/clinics/",
		InventoryPath:      "clinical/inventory/flat-list/",
		SerialsPath:        "clinical/inventory/serial/list/",
		TransferPath:       "clinical/inventory/transfer/",
		BreakerMaxFailures: 2,
		BreakerOpenTimeout: time.Minute,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestListClinics_BareArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accounts/clinics/", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":1,"name":"Main","is_main_inventory":true},{"id":3,"name":"City"}]`))
	})

	clinics, err := client.ListClinics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Clinic{
		{ID: 1, Name: "Main", IsMainInventory: true},
		{ID: 3, Name: "City"},
	}, clinics)
}

func TestListTransferableItems_Envelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200,"data":[
			{"id":7,"stock_type":"Non-Serialized","quantity_in_stock":5,"product_name":"Batteries","unit_price":"2.50"},
			{"id":9,"stockType":"Serialized","name":"Hearing Aid","unitPrice":499},
			{"id":10,"stockType":"Bulk","stock":12,"name":"Domes","unit_price":null},
			{"id":11,"stock_type":"Consignment","name":"Unknown"}
		]}`))
	})

	items, err := client.ListTransferableItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, domain.StockTypeBulk, items[0].StockType)
	assert.Equal(t, 5, items[0].AvailableStock)
	assert.Equal(t, "Batteries", items[0].DisplayName)
	assert.True(t, decimal.RequireFromString("2.5").Equal(items[0].UnitPrice))

	assert.Equal(t, domain.StockTypeSerialized, items[1].StockType)
	assert.Equal(t, "Hearing Aid", items[1].DisplayName)
	assert.True(t, decimal.NewFromInt(499).Equal(items[1].UnitPrice))

	assert.Equal(t, 12, items[2].AvailableStock)
	assert.True(t, items[2].UnitPrice.IsZero())
}

func TestListTransferableItems_FlatListWithoutStock(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":7,"product_name":"Batteries","brand__name":"Acme","model_type__name":"312","stock_type":"Non-Serialized"},
			{"id":8,"product_name":"Domes","stock_type":"Bulk","stock":0}
		]`))
	})

	items, err := client.ListTransferableItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, domain.StockTypeBulk, items[0].StockType)
	assert.True(t, items[0].StockUnknown)
	assert.True(t, items[0].InStock())
	assert.Equal(t, "Acme", items[0].Brand)
	assert.Equal(t, "312", items[0].Model)

	assert.False(t, items[1].StockUnknown)
	assert.False(t, items[1].InStock())
}

func TestListAvailableSerials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9", r.URL.Query().Get("inventory_item"))
		w.Write([]byte(`{"data":{"results":["SN1",{"serial_number":"SN2"},{"sn":"SN3"},"  ",{"other":1}]}}`))
	})

	serials, err := client.ListAvailableSerials(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"SN1", "SN2", "SN3"}, serials)
}

func TestCreateTransfer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/clinical/inventory/transfer/", r.URL.Path)
		assert.Equal(t, "transfer:s-1:4", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 3, body["to_clinic_id"])

		w.Write([]byte(`{"status":200,"message":"Inventory transferred successfully.","transferred_count":2}`))
	})

	conf, err := client.CreateTransfer(context.Background(), domain.TransferRequest{
		ToClinicID: 3,
		Products: []domain.TransferProduct{
			{SourceInventoryID: 7, Quantity: 2},
			{SourceInventoryID: 9, SerialNumbers: []string{"SN1"}},
		},
	}, "transfer:s-1:4")
	require.NoError(t, err)
	assert.Equal(t, "Inventory transferred successfully.", conf.Message)
	assert.Equal(t, 2, conf.TransferredCount)
}

func TestCreateTransfer_BackendError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "error field", status: 400, body: `{"status":400,"error":"Destination clinic is required."}`, want: "Destination clinic is required."},
		{name: "detail field", status: 403, body: `{"detail":"You do not have permission."}`, want: "You do not have permission."},
		{name: "no body", status: 500, body: ``, want: "request failed with status code 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.CreateTransfer(context.Background(), domain.TransferRequest{ToClinicID: 3}, "")

			var be *domain.BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.status, be.Status)
			assert.Equal(t, tt.want, be.Message)
		})
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := client.ListClinics(context.Background())
		require.Error(t, err)
	}

	_, err := client.ListClinics(context.Background())
	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "clinic backend is temporarily unavailable", be.Message)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	})

	for i := 0; i < 4; i++ {
		_, err := client.ListClinics(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestBreakerIgnoresCancelledCallers(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 4; i++ {
		_, err := client.ListClinics(ctx)
		require.ErrorIs(t, err, context.Canceled)
	}

	_, err := client.ListClinics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, client.breaker.State())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := NewHTTPClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second, ClinicsPath: "clinics/"}, nil)
	require.NoError(t, err)

	_, err = client.ListClinics(context.Background())
	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Zero(t, be.Status)
	assert.NotEmpty(t, be.Message)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestNewHTTPClient_RejectsRelativeBase(t *testing.T) {
	_, err := NewHTTPClient(Config{BaseURL: "/api/"}, nil)
	assert.Error(t, err)
}
