package domain

import "time"

// TransferProduct is one line of the transfer payload. The backend tells the
// two shapes apart by the presence of SerialNumbers.
type TransferProduct struct {
	SourceInventoryID int      `json:"source_inventory_id"`
	Quantity          int      `json:"quantity,omitempty"`
	SerialNumbers     []string `json:"serial_numbers,omitempty"`
}

type TransferRequest struct {
	ToClinicID int               `json:"to_clinic_id"`
	Notes      string            `json:"notes"`
	Products   []TransferProduct `json:"products"`
}

// NewTransferProduct converts a cart line to its wire shape.
func NewTransferProduct(line CartLine) TransferProduct {
	switch l := line.(type) {
	case SerializedLine:
		return TransferProduct{
			SourceInventoryID: l.Item.ID,
			SerialNumbers:     append([]string(nil), l.Serials...),
		}
	case BulkLine:
		return TransferProduct{
			SourceInventoryID: l.Item.ID,
			Quantity:          l.Quantity,
		}
	}
	return TransferProduct{SourceInventoryID: line.ItemID()}
}

// Confirmation is the backend's acknowledgement of a transfer.
type Confirmation struct {
	Message          string
	TransferredCount int
	IdempotencyKey   string
	SubmittedAt      time.Time
}

// TransferRecord is a confirmed transfer kept in local history.
type TransferRecord struct {
	ID             string
	SessionID      string
	ToClinicID     int
	Notes          string
	Products       []TransferProduct
	Message        string
	IdempotencyKey string
	CreatedAt      time.Time
}
