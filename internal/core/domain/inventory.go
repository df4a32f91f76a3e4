package domain

import "github.com/shopspring/decimal"

type StockType string

const (
	StockTypeSerialized StockType = "Serialized"
	StockTypeBulk       StockType = "Bulk"
)

// ParseStockType accepts the labels the clinic backend uses for each discipline.
func ParseStockType(s string) (StockType, bool) {
	switch s {
	case "Serialized", "serialized":
		return StockTypeSerialized, true
	case "Bulk", "bulk", "Non-Serialized", "non-serialized":
		return StockTypeBulk, true
	}
	return "", false
}

type InventoryItem struct {
	ID             int
	StockType      StockType
	AvailableStock int // bulk items only
	// StockUnknown is set when the backend did not report stock. Quantities
	// are then bounded below only.
	StockUnknown bool
	DisplayName    string
	Brand          string
	Model          string
	UnitPrice      decimal.Decimal
}

func (i InventoryItem) IsSerialized() bool {
	return i.StockType == StockTypeSerialized
}

// InStock reports whether a bulk line can be built for the item.
func (i InventoryItem) InStock() bool {
	return i.StockUnknown || i.AvailableStock > 0
}

// ClampQuantity bounds value to [1, stock], or to at least 1 when stock is
// unknown.
func (i InventoryItem) ClampQuantity(value int) int {
	if i.StockUnknown {
		return max(1, value)
	}
	return ClampQuantity(value, i.AvailableStock)
}

type Clinic struct {
	ID              int
	Name            string
	IsMainInventory bool
}
