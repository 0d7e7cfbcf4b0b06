package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrProductGone       = errors.New("product no longer exists")
	ErrBusy              = errors.New("resource busy, retry")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// Retryable reports whether err is safe to retry without caller correction.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
