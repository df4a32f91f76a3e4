package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

type clinicDTO struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	IsMainInventory bool   `json:"is_main_inventory"`
}

func (d clinicDTO) toDomain() domain.Clinic {
	return domain.Clinic{ID: d.ID, Name: d.Name, IsMainInventory: d.IsMainInventory}
}

// inventoryItemDTO accepts both the snake_case fields of the clinic API and
// the camelCase ones some dropdown endpoints return.
type inventoryItemDTO struct {
	ID              int                 `json:"id"`
	StockTypeSnake  string              `json:"stock_type"`
	StockTypeCamel  string              `json:"stockType"`
	Stock           *int                `json:"stock"`
	QuantityInStock *int                `json:"quantity_in_stock"`
	ProductName     string              `json:"product_name"`
	Name            string              `json:"name"`
	Brand           string              `json:"brand__name"`
	Model           string              `json:"model_type__name"`
	UnitPriceSnake  decimal.NullDecimal `json:"unit_price"`
	UnitPriceCamel  decimal.NullDecimal `json:"unitPrice"`
}

func (d inventoryItemDTO) stockType() string {
	if d.StockTypeSnake != "" {
		return d.StockTypeSnake
	}
	return d.StockTypeCamel
}

func (d inventoryItemDTO) toDomain() (domain.InventoryItem, bool) {
	st, ok := domain.ParseStockType(d.stockType())
	if !ok {
		return domain.InventoryItem{}, false
	}

	item := domain.InventoryItem{
		ID:          d.ID,
		StockType:   st,
		DisplayName: d.ProductName,
		Brand:       d.Brand,
		Model:       d.Model,
		UnitPrice:   decimal.Zero,
	}
	if item.DisplayName == "" {
		item.DisplayName = d.Name
	}
	switch {
	case d.Stock != nil:
		item.AvailableStock = *d.Stock
	case d.QuantityInStock != nil:
		item.AvailableStock = *d.QuantityInStock
	default:
		item.StockUnknown = true
	}
	item.AvailableStock = max(0, item.AvailableStock)

	switch {
	case d.UnitPriceSnake.Valid:
		item.UnitPrice = d.UnitPriceSnake.Decimal
	case d.UnitPriceCamel.Valid:
		item.UnitPrice = d.UnitPriceCamel.Decimal
	}
	return item, true
}

type transferResponseDTO struct {
	Message          string `json:"message"`
	TransferredCount int    `json:"transferred_count"`
}

type envelopeDTO struct {
	Data    json.RawMessage `json:"data"`
	Results json.RawMessage `json:"results"`
}

// unwrapList digs through data/results envelopes until it finds an array.
// A JSON null is treated as an empty list.
func unwrapList(raw json.RawMessage) (json.RawMessage, error) {
	for depth := 0; depth < 3; depth++ {
		trimmed := bytes.TrimSpace(raw)
		switch {
		case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
			return json.RawMessage("[]"), nil
		case trimmed[0] == '[':
			return trimmed, nil
		case trimmed[0] != '{':
			return nil, fmt.Errorf("expected list, got %.20s", trimmed)
		}

		var env envelopeDTO
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		switch {
		case len(env.Results) > 0:
			raw = env.Results
		case len(env.Data) > 0:
			raw = env.Data
		default:
			return nil, fmt.Errorf("response has no data or results field")
		}
	}
	return nil, fmt.Errorf("list envelope nested too deep")
}

// decodeSerials accepts plain strings or objects carrying the serial under
// serial_number, sn or name.
func decodeSerials(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			SerialNumber string `json:"serial_number"`
			SN           string `json:"sn"`
			Name         string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			continue
		}
		for _, s := range []string{obj.SerialNumber, obj.SN, obj.Name} {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// errorMessage pulls the human-readable error out of a failure body.
func errorMessage(body []byte) string {
	var e struct {
		Error  json.RawMessage `json:"error"`
		Detail string          `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	var s string
	if len(e.Error) > 0 && json.Unmarshal(e.Error, &s) == nil && s != "" {
		return s
	}
	return e.Detail
}
