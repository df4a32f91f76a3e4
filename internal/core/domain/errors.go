package domain

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotSelected    = errors.New("item not selected")
	ErrDuplicateItem      = errors.New("item already in cart")
	ErrMissingSerials     = errors.New("at least one serial number is required")
	ErrDuplicateSerial    = errors.New("serial already added")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrOutOfStock         = errors.New("item has no available stock")
	ErrNoDestination      = errors.New("destination clinic not selected")
	ErrUnknownDestination = errors.New("unknown destination clinic")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrEmptySerialLine    = errors.New("serialized line has no serial numbers")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrWrongStockType     = errors.New("operation does not match line stock type")
)

var validationErrors = []error{
	ErrItemNotSelected,
	ErrDuplicateItem,
	ErrMissingSerials,
	ErrDuplicateSerial,
	ErrInvalidQuantity,
	ErrOutOfStock,
	ErrNoDestination,
	ErrUnknownDestination,
	ErrEmptyCart,
	ErrEmptySerialLine,
	ErrLineNotFound,
	ErrWrongStockType,
}

// IsValidation reports whether err was raised by a client-side check rather
// than by the backend or the network.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// BackendError is a failed call to the clinic backend. Status is zero for
// transport failures.
type BackendError struct {
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend unreachable: %s", e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
