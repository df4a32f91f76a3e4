package handler

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-transfer/internal/core/service"
	"github.com/rl1809/stock-transfer/internal/logging"
)

// HealthServiceName is the gRPC health service name reported for the
// transfer API.
const HealthServiceName = "stocktransfer.v1.TransferService"

// GRPCHandler reports readiness over the standard gRPC health protocol. The
// service is SERVING once both reference data sets are loaded.
type GRPCHandler struct {
	health *health.Server
	logger *zap.Logger
}

func NewGRPCHandler(logger *zap.Logger) *GRPCHandler {
	h := &GRPCHandler{health: health.NewServer(), logger: logging.OrNop(logger)}
	h.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Update is meant to be passed to ReferenceLoader.OnLoad.
func (h *GRPCHandler) Update(refs *service.ReferenceData) {
	status := healthpb.HealthCheckResponse_SERVING
	if !refs.CanChooseDestination() || !refs.CanAddItems() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(HealthServiceName, status)
	h.logger.Info("grpc health updated", zap.String("status", status.String()))
}

func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
