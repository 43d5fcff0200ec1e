package domain

import "time"

// PendingWebhook is a settlement notification that named an order which did
// not exist yet. OrderID is a plain reference, not a foreign key.
type PendingWebhook struct {
	ID          int64
	OrderID     int64
	PaymentID   string
	Status      PaymentStatus
	Payload     []byte
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// IdempotencyRecord maps a caller key plus request fingerprint to the
// response that was produced for it.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	Response    []byte
	CreatedAt   time.Time
}
