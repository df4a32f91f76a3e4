package domain

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is one item's pending transfer intent. The only implementations are
// BulkLine and SerializedLine.
type CartLine interface {
	ItemID() int
	Units() int
	isCartLine()
}

type BulkLine struct {
	Item     InventoryItem
	Quantity int
}

func (l BulkLine) ItemID() int { return l.Item.ID }
func (l BulkLine) Units() int  { return l.Quantity }
func (BulkLine) isCartLine()   {}

type SerializedLine struct {
	Item    InventoryItem
	Serials []string
}

func (l SerializedLine) ItemID() int { return l.Item.ID }
func (l SerializedLine) Units() int  { return len(l.Serials) }
func (SerializedLine) isCartLine()   {}

// ClampQuantity bounds a bulk quantity to [1, stock].
func ClampQuantity(value, stock int) int {
	return max(1, min(stock, value))
}

type CartSummary struct {
	Lines          int
	Units          int
	EstimatedValue decimal.Decimal
}

// Cart is the ordered set of lines plus destination and notes for one transfer.
// A Cart is not safe for concurrent use.
type Cart struct {
	DestinationClinicID string
	Notes               string

	lines    []CartLine
	revision int64
}

func NewCart() *Cart {
	return &Cart{}
}

// Revision increases on every mutation.
func (c *Cart) Revision() int64 {
	return c.revision
}

func (c *Cart) Lines() []CartLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Line(itemID int) (CartLine, bool) {
	i := c.index(itemID)
	if i < 0 {
		return nil, false
	}
	return c.lines[i], true
}

func (c *Cart) Contains(itemID int) bool {
	return c.index(itemID) >= 0
}

func (c *Cart) SetDestination(clinicID string) {
	c.DestinationClinicID = strings.TrimSpace(clinicID)
	c.revision++
}

func (c *Cart) SetNotes(notes string) {
	c.Notes = notes
	c.revision++
}

// Append adds a line, rejecting a second line for the same item.
func (c *Cart) Append(line CartLine) error {
	if c.Contains(line.ItemID()) {
		return ErrDuplicateItem
	}
	c.lines = append(c.lines, line)
	c.revision++
	return nil
}

// RemoveLine is a no-op when the item has no line.
func (c *Cart) RemoveLine(itemID int) {
	i := c.index(itemID)
	if i < 0 {
		return
	}
	c.lines = slices.Delete(c.lines, i, i+1)
	c.revision++
}

// AdjustQuantity moves a bulk line's quantity by delta, clamped to [1, stock]
// when stock is known.
func (c *Cart) AdjustQuantity(itemID, delta int) error {
	i, line, err := c.bulkLine(itemID)
	if err != nil {
		return err
	}
	line.Quantity = line.Item.ClampQuantity(line.Quantity + delta)
	c.lines[i] = line
	c.revision++
	return nil
}

// SetQuantity replaces a bulk line's quantity, clamped like AdjustQuantity.
func (c *Cart) SetQuantity(itemID, value int) error {
	i, line, err := c.bulkLine(itemID)
	if err != nil {
		return err
	}
	line.Quantity = line.Item.ClampQuantity(value)
	c.lines[i] = line
	c.revision++
	return nil
}

// ToggleSerial adds serial to a serialized line when absent and removes it
// when present. A line may end up with no serials; Submit rejects that.
func (c *Cart) ToggleSerial(itemID int, serial string) error {
	i := c.index(itemID)
	if i < 0 {
		return ErrLineNotFound
	}
	line, ok := c.lines[i].(SerializedLine)
	if !ok {
		return ErrWrongStockType
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil
	}

	serials := slices.Clone(line.Serials)
	if j := slices.Index(serials, serial); j >= 0 {
		serials = slices.Delete(serials, j, j+1)
	} else {
		serials = append(serials, serial)
	}
	line.Serials = serials
	c.lines[i] = line
	c.revision++
	return nil
}

// Reset clears destination, notes and every line.
func (c *Cart) Reset() {
	c.DestinationClinicID = ""
	c.Notes = ""
	c.lines = nil
	c.revision++
}

func (c *Cart) Summary() CartSummary {
	s := CartSummary{Lines: len(c.lines), EstimatedValue: decimal.Zero}
	for _, line := range c.lines {
		units := line.Units()
		s.Units += units

		var price decimal.Decimal
		switch l := line.(type) {
		case BulkLine:
			price = l.Item.UnitPrice
		case SerializedLine:
			price = l.Item.UnitPrice
		}
		s.EstimatedValue = s.EstimatedValue.Add(price.Mul(decimal.NewFromInt(int64(units))))
	}
	return s
}

func (c *Cart) index(itemID int) int {
	return slices.IndexFunc(c.lines, func(l CartLine) bool { return l.ItemID() == itemID })
}

func (c *Cart) bulkLine(itemID int) (int, BulkLine, error) {
	i := c.index(itemID)
	if i < 0 {
		return -1, BulkLine{}, ErrLineNotFound
	}
	line, ok := c.lines[i].(BulkLine)
	if !ok {
		return -1, BulkLine{}, ErrWrongStockType
	}
	return i, line, nil
}
