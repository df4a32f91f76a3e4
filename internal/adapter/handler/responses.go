package handler

import (
	"time"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/core/service"
)

type clinicResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type itemResponse struct {
	ID             int              `json:"id"`
	Name           string           `json:"name"`
	Brand          string           `json:"brand,omitempty"`
	Model          string           `json:"model,omitempty"`
	StockType      domain.StockType `json:"stock_type"`
	AvailableStock *int             `json:"available_stock"`
	UnitPrice      string           `json:"unit_price"`
}

type referenceResponse struct {
	Destinations         []clinicResponse `json:"destinations"`
	Items                []itemResponse   `json:"items"`
	CanChooseDestination bool             `json:"can_choose_destination"`
	CanAddItems          bool             `json:"can_add_items"`
	LoadedAt             *time.Time       `json:"loaded_at,omitempty"`
}

func newReferenceResponse(refs *service.ReferenceData) referenceResponse {
	out := referenceResponse{
		Destinations:         []clinicResponse{},
		Items:                []itemResponse{},
		CanChooseDestination: refs.CanChooseDestination(),
		CanAddItems:          refs.CanAddItems(),
	}
	for _, c := range refs.Destinations() {
		out.Destinations = append(out.Destinations, clinicResponse{ID: c.ID, Name: c.Name})
	}
	for _, item := range refs.Items() {
		out.Items = append(out.Items, newItemResponse(item))
	}
	if t := refs.LoadedAt(); !t.IsZero() {
		out.LoadedAt = &t
	}
	return out
}

func newItemResponse(item domain.InventoryItem) itemResponse {
	out := itemResponse{
		ID:        item.ID,
		Name:      item.DisplayName,
		Brand:     item.Brand,
		Model:     item.Model,
		StockType: item.StockType,
		UnitPrice: item.UnitPrice.StringFixed(2),
	}
	if !item.StockUnknown {
		stock := item.AvailableStock
		out.AvailableStock = &stock
	}
	return out
}

type lineResponse struct {
	Item     itemResponse `json:"item"`
	Quantity int          `json:"quantity,omitempty"`
	Serials  []string     `json:"serials,omitempty"`
	Units    int          `json:"units"`
}

type stagingResponse struct {
	ItemID      int      `json:"item_id,omitempty"`
	Quantity    int      `json:"quantity"`
	SerialInput string   `json:"serial_input"`
	Serials     []string `json:"serials"`
}

type summaryResponse struct {
	Lines          int    `json:"lines"`
	Units          int    `json:"units"`
	EstimatedValue string `json:"estimated_value"`
}

type sessionResponse struct {
	ID                  string          `json:"id"`
	DestinationClinicID string          `json:"destination_clinic_id"`
	Notes               string          `json:"notes"`
	Lines               []lineResponse  `json:"lines"`
	Staging             stagingResponse `json:"staging"`
	AvailableSerials    []string        `json:"available_serials"`
	Summary             summaryResponse `json:"summary"`
	State               string          `json:"state"`
	Revision            int64           `json:"revision"`
}

func newSessionResponse(v service.SessionView) sessionResponse {
	out := sessionResponse{
		ID:                  v.ID,
		DestinationClinicID: v.DestinationClinicID,
		Notes:               v.Notes,
		Lines:               make([]lineResponse, 0, len(v.Lines)),
		Staging: stagingResponse{
			ItemID:      v.Staging.ItemID,
			Quantity:    v.Staging.Quantity,
			SerialInput: v.Staging.SerialInput,
			Serials:     nonNil(v.Staging.Serials),
		},
		AvailableSerials: nonNil(v.AvailableSerials),
		Summary: summaryResponse{
			Lines:          v.Summary.Lines,
			Units:          v.Summary.Units,
			EstimatedValue: v.Summary.EstimatedValue.StringFixed(2),
		},
		State:    v.State.String(),
		Revision: v.Revision,
	}
	for _, line := range v.Lines {
		lr := lineResponse{Units: line.Units()}
		switch l := line.(type) {
		case domain.BulkLine:
			lr.Item = newItemResponse(l.Item)
			lr.Quantity = l.Quantity
		case domain.SerializedLine:
			lr.Item = newItemResponse(l.Item)
			lr.Serials = nonNil(l.Serials)
		}
		out.Lines = append(out.Lines, lr)
	}
	return out
}

// sessionData is nil for the zero view so that error bodies carry no data.
func sessionData(v service.SessionView) any {
	if v.ID == "" {
		return nil
	}
	return newSessionResponse(v)
}

type submitResponse struct {
	TransferredCount int             `json:"transferred_count"`
	IdempotencyKey   string          `json:"idempotency_key"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	Session          sessionResponse `json:"session"`
}

type transferRecordResponse struct {
	ID             string                   `json:"id"`
	SessionID      string                   `json:"session_id"`
	ToClinicID     int                      `json:"to_clinic_id"`
	Notes          string                   `json:"notes"`
	Products       []domain.TransferProduct `json:"products"`
	Message        string                   `json:"message"`
	IdempotencyKey string                   `json:"idempotency_key"`
	CreatedAt      time.Time                `json:"created_at"`
}

func newTransferRecordResponse(rec domain.TransferRecord) transferRecordResponse {
	return transferRecordResponse{
		ID:             rec.ID,
		SessionID:      rec.SessionID,
		ToClinicID:     rec.ToClinicID,
		Notes:          rec.Notes,
		Products:       rec.Products,
		Message:        rec.Message,
		IdempotencyKey: rec.IdempotencyKey,
		CreatedAt:      rec.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
