package app

import (
	"context"
	"errors"
	"time"

	"github.com/cimillas/flashsale/internal/domain"
)

// Operation names reported to an Observer.
const (
	OperationReserve     = "reserve"
	OperationCreateOrder = "create_order"
	OperationSettle      = "settle"
	OperationReconcile   = "reconcile"
	OperationSweep       = "sweep"
	OperationPrune       = "prune"
	OperationSeed        = "seed_product"
)

// Operation describes one completed service call.
type Operation struct {
	Name      string
	ProductID int64
	HoldID    int64
	OrderID   int64
	Quantity  int
	// Outcome is a short result label such as "ok", "insufficient_stock",
	// "queued" or "replayed".
	Outcome  string
	Count    int
	Duration time.Duration
	Err      error
}

// Observer receives a callback for every service operation.
type Observer interface {
	Observe(ctx context.Context, op Operation)
}

// Observers fans an operation out to several observers.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, op Operation) {
	for _, observer := range o {
		if observer != nil {
			observer.Observe(ctx, op)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Operation) {}

// StockInvalidator drops cached availability after a committed mutation.
type StockInvalidator interface {
	Invalidate(ctx context.Context, productID int64)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, int64) {}

func outcomeOf(err error, ok string) string {
	if err == nil {
		return ok
	}
	return errorOutcome(err)
}

func errorOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrHoldNotFound):
		return "hold_not_found"
	case errors.Is(err, domain.ErrHoldInvalid):
		return "hold_invalid"
	case errors.Is(err, domain.ErrHoldExpired):
		return "hold_expired"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, domain.ErrOrderAlreadySettled):
		return "order_already_settled"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidHoldToken),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return "invalid"
	default:
		return "error"
	}
}
