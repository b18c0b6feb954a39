package cart

import "errors"

var (
	// ErrInvalidItem is returned when an item descriptor fails validation.
	ErrInvalidItem = errors.New("invalid item")
	// ErrUnknownModel is returned when an associated model cannot be resolved.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotFound indicates the requested item is not in the cart.
	ErrNotFound = errors.New("cart item not found")
	// ErrSessionKeyRequired is returned when a cart is opened without a session key.
	ErrSessionKeyRequired = errors.New("session key is required")
)
