package port

import (
	"context"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

type ClinicBackend interface {
	// ListClinics returns every clinic the caller may see, including main inventories
	ListClinics(ctx context.Context) ([]domain.Clinic, error)

	// ListTransferableItems returns the inventory items that can be moved out of the caller's clinic
	ListTransferableItems(ctx context.Context) ([]domain.InventoryItem, error)

	// ListAvailableSerials returns the in-stock serial numbers of a serialized item
	ListAvailableSerials(ctx context.Context, itemID int) ([]string, error)

	// CreateTransfer posts one atomic transfer request
	CreateTransfer(ctx context.Context, req domain.TransferRequest, idempotencyKey string) (*domain.Confirmation, error)
}
