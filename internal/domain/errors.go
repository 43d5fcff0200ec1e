package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID              = errors.New("invalid id")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidHoldToken       = errors.New("invalid hold token")
	ErrInvalidPayload         = errors.New("invalid payload")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrInvalidProduct         = errors.New("invalid product")
	ErrProductNotFound        = errors.New("product not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrHoldNotFound           = errors.New("hold not found")
	ErrHoldInvalid            = errors.New("hold already used")
	ErrHoldExpired            = errors.New("hold expired")
	ErrHoldTokenCollision     = errors.New("hold token collision")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderAlreadySettled    = errors.New("order already settled")
	ErrAmountMismatch         = errors.New("payment amount mismatch")
	ErrCurrencyMismatch       = errors.New("payment currency mismatch")
	ErrIdempotencyConflict    = errors.New("idempotency key reused with different payload")
	ErrPendingWebhookNotFound = errors.New("pending webhook not found")

	// ErrTransient marks infrastructure failures (lock timeout, deadlock,
	// lost connection) that are safe to retry and must never be cached.
	ErrTransient = errors.New("transient failure")
)

// InsufficientStockError reports the stock that was available when a
// reservation was rejected.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsTransient reports whether err is a retryable infrastructure failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
