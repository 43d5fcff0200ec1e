package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// PaymentOutcome is the closed set of results a payment provider can report.
// Only Paid, Failed and Cancelled implement it.
type PaymentOutcome interface {
	Status() PaymentStatus
	// OrderStatus is the terminal status the outcome moves an order to.
	OrderStatus() OrderStatus
	isPaymentOutcome()
}

// Paid carries the amount the provider captured; it must match the order.
type Paid struct {
	Amount   decimal.Decimal
	Currency string
}

type Failed struct{}

type Cancelled struct{}

func (Paid) Status() PaymentStatus      { return PaymentStatusPaid }
func (Paid) OrderStatus() OrderStatus   { return OrderStatusPaid }
func (Paid) isPaymentOutcome()          {}
func (Failed) Status() PaymentStatus    { return PaymentStatusFailed }
func (Failed) OrderStatus() OrderStatus { return OrderStatusCancelled }
func (Failed) isPaymentOutcome()        {}

func (Cancelled) Status() PaymentStatus    { return PaymentStatusCancelled }
func (Cancelled) OrderStatus() OrderStatus { return OrderStatusCancelled }
func (Cancelled) isPaymentOutcome()        {}

// PaymentNotification is a validated settlement webhook payload.
type PaymentNotification struct {
	OrderID   int64
	PaymentID string
	Outcome   PaymentOutcome
}

type paymentNotificationJSON struct {
	OrderID   *int64           `json:"order_id"`
	PaymentID string           `json:"payment_id"`
	Status    string           `json:"status"`
	Amount    *decimal.Decimal `json:"amount"`
	Currency  string           `json:"currency"`
}

// ParsePaymentNotification decodes and validates a raw webhook payload.
// Every failure wraps ErrInvalidPayload.
func ParsePaymentNotification(payload []byte) (PaymentNotification, error) {
	var raw paymentNotificationJSON
	if err := json.Unmarshal(payload, &raw); err != nil {
		return PaymentNotification{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if raw.OrderID == nil || *raw.OrderID <= 0 {
		return PaymentNotification{}, fmt.Errorf("%w: order_id must be a positive integer", ErrInvalidPayload)
	}
	paymentID := strings.TrimSpace(raw.PaymentID)
	if paymentID == "" {
		return PaymentNotification{}, fmt.Errorf("%w: payment_id is required", ErrInvalidPayload)
	}
	// Only paid notifications must name a currency; others are checked when
	// they carry one.
	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	status := PaymentStatus(strings.TrimSpace(raw.Status))
	if (currency != "" || status == PaymentStatusPaid) && !isCurrencyCode(currency) {
		return PaymentNotification{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidPayload)
	}

	var outcome PaymentOutcome
	switch status {
	case PaymentStatusPaid:
		if raw.Amount == nil {
			return PaymentNotification{}, fmt.Errorf("%w: amount is required for paid", ErrInvalidPayload)
		}
		if !raw.Amount.IsPositive() {
			return PaymentNotification{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
		}
		outcome = Paid{Amount: *raw.Amount, Currency: currency}
	case PaymentStatusFailed:
		outcome = Failed{}
	case PaymentStatusCancelled:
		outcome = Cancelled{}
	default:
		return PaymentNotification{}, fmt.Errorf("%w: status must be one of paid, failed, cancelled", ErrInvalidPayload)
	}

	return PaymentNotification{
		OrderID:   *raw.OrderID,
		PaymentID: paymentID,
		Outcome:   outcome,
	}, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
