package service

import (
	"github.com/rl1809/stock-transfer/internal/core/domain"
)

// CartBuilder turns a staging selection into a cart line. Checks run in
// order and the first failure is returned.
type CartBuilder struct {
	refs ReferenceSource
}

func NewCartBuilder(refs ReferenceSource) *CartBuilder {
	return &CartBuilder{refs: refs}
}

// AddLine appends a line built from staging and resets staging. On error
// neither the cart nor staging is changed.
func (b *CartBuilder) AddLine(cart *domain.Cart, staging *domain.StagingSelection) (domain.CartLine, error) {
	item, ok := b.refs.Current().Item(staging.ItemID)
	if !staging.HasItem() || !ok {
		return nil, domain.ErrItemNotSelected
	}
	if cart.Contains(item.ID) {
		return nil, domain.ErrDuplicateItem
	}

	var line domain.CartLine
	switch item.StockType {
	case domain.StockTypeSerialized:
		if len(staging.Serials) == 0 {
			return nil, domain.ErrMissingSerials
		}
		line = domain.SerializedLine{
			Item:    item,
			Serials: append([]string(nil), staging.Serials...),
		}
	default:
		if staging.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		if !item.InStock() {
			return nil, domain.ErrOutOfStock
		}
		line = domain.BulkLine{
			Item:     item,
			Quantity: item.ClampQuantity(staging.Quantity),
		}
	}

	if err := cart.Append(line); err != nil {
		return nil, err
	}
	staging.Reset()
	return line, nil
}
