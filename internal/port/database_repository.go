package port

import (
	"context"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

type DatabaseRepository interface {
	// RecordTransfer persists a confirmed transfer and its lines
	RecordTransfer(ctx context.Context, record domain.TransferRecord) error

	// ListTransfers returns the most recent transfers, newest first
	ListTransfers(ctx context.Context, limit int) ([]domain.TransferRecord, error)
}
