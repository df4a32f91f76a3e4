package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/core/service"
)

func healthStatus(t *testing.T, h *GRPCHandler) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestGRPCHealth_FollowsReferenceData(t *testing.T) {
	h := NewGRPCHandler(nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, h))

	h.Update(service.NewReferenceData(
		[]domain.Clinic{{ID: 3, Name: "City"}},
		[]domain.InventoryItem{{ID: 7, StockType: domain.StockTypeBulk, AvailableStock: 1}},
	))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, healthStatus(t, h))

	// only a main inventory clinic: nothing to transfer to
	h.Update(service.NewReferenceData(
		[]domain.Clinic{{ID: 1, Name: "Main", IsMainInventory: true}},
		[]domain.InventoryItem{{ID: 7, StockType: domain.StockTypeBulk, AvailableStock: 1}},
	))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, h))
}

func TestGRPCHealth_WiredThroughLoader(t *testing.T) {
	h := NewGRPCHandler(nil)
	loader := service.NewReferenceLoader(newMockBackend(), nil, nil)
	loader.OnLoad(h.Update)

	_, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, healthStatus(t, h))
}
