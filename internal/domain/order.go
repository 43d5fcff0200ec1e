package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition reports whether s -> to is a legal status change.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return s == OrderStatusPendingPayment && to.Terminal()
}

// Sold reports whether the order's quantity is permanently taken from stock.
// The hold behind a pending order has been consumed, so pending orders do
// not withhold stock.
func (s OrderStatus) Sold() bool {
	return s == OrderStatusPaid
}

// Order represents a purchase derived from exactly one hold. Amount is frozen
// at creation time.
type Order struct {
	ID        int64
	HoldID    int64
	ProductID int64
	Quantity  int
	Amount    decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
