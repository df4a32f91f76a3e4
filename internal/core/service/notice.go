package service

import (
	"errors"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

const (
	DefaultSuccessMessage = "Transfer submitted successfully!"
	FallbackSubmitMessage = "Failed to submit transfer."
	FallbackLoadMessage   = "Failed to load dropdowns"
)

var notices = []struct {
	err error
	msg string
}{
	{domain.ErrItemNotSelected, "Please select a product."},
	{domain.ErrDuplicateItem, "Product already added."},
	{domain.ErrMissingSerials, "Please add at least one serial number."},
	{domain.ErrDuplicateSerial, "Serial already added."},
	{domain.ErrInvalidQuantity, "Please enter a valid quantity."},
	{domain.ErrOutOfStock, "This product is out of stock."},
	{domain.ErrNoDestination, "Please select a destination clinic and add at least one product."},
	{domain.ErrEmptyCart, "Please select a destination clinic and add at least one product."},
	{domain.ErrUnknownDestination, "Please select a valid destination clinic."},
	{domain.ErrEmptySerialLine, "Every serialized product needs at least one serial number."},
	{domain.ErrLineNotFound, "Product is not in the transfer list."},
	{domain.ErrWrongStockType, "This action does not apply to that product."},
	{ErrSubmissionInFlight, "A transfer is already being submitted."},
	{ErrDuplicateSubmission, "This transfer was already submitted."},
	{ErrSessionNotFound, "Transfer session not found."},
}

// UserMessage picks the notice shown to the user for err: a fixed text for
// client-side checks, the backend's message when it sent one, else fallback.
func UserMessage(err error, fallback string) string {
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return n.msg
		}
	}
	var be *domain.BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}
