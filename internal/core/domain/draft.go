package domain

import "time"

// Draft is a resumable snapshot of a composing session.
type Draft struct {
	SessionID           string      `json:"session_id"`
	DestinationClinicID string      `json:"destination_clinic_id"`
	Notes               string      `json:"notes"`
	Lines               []DraftLine `json:"lines"`
	Revision            int64       `json:"revision"`
	SavedAt             time.Time   `json:"saved_at"`
}

type DraftLine struct {
	ItemID   int      `json:"item_id"`
	Quantity int      `json:"quantity,omitempty"`
	Serials  []string `json:"serials,omitempty"`
}

func (c *Cart) Draft(sessionID string, now time.Time) Draft {
	d := Draft{
		SessionID:           sessionID,
		DestinationClinicID: c.DestinationClinicID,
		Notes:               c.Notes,
		Revision:            c.revision,
		SavedAt:             now,
	}
	for _, p := range c.lines {
		tp := NewTransferProduct(p)
		d.Lines = append(d.Lines, DraftLine{ItemID: tp.SourceInventoryID, Quantity: tp.Quantity, Serials: tp.SerialNumbers})
	}
	return d
}

// RestoreCart rebuilds a cart from a draft. Lines whose item is no longer
// transferable, or whose stock discipline changed, are dropped; bulk
// quantities are re-clamped to current stock when it is known.
func RestoreCart(d Draft, lookup func(id int) (InventoryItem, bool)) (*Cart, int) {
	c := &Cart{
		DestinationClinicID: d.DestinationClinicID,
		Notes:               d.Notes,
		revision:            d.Revision,
	}
	dropped := 0
	for _, dl := range d.Lines {
		item, ok := lookup(dl.ItemID)
		if !ok || c.Contains(item.ID) {
			dropped++
			continue
		}
		if item.IsSerialized() {
			if len(dl.Serials) == 0 && dl.Quantity > 0 {
				dropped++
				continue
			}
			c.lines = append(c.lines, SerializedLine{Item: item, Serials: append([]string(nil), dl.Serials...)})
			continue
		}
		if len(dl.Serials) > 0 || !item.InStock() {
			dropped++
			continue
		}
		c.lines = append(c.lines, BulkLine{Item: item, Quantity: item.ClampQuantity(dl.Quantity)})
	}
	return c, dropped
}
