package domain

import "time"

// Hold represents reserved inventory for a limited time.
//
// Used flips to true exactly once, either when the hold is consumed into an
// order or when it is released (expiry, lazy expiry at order time, payment
// failure). ExpiresAt is set at creation and never changes.
type Hold struct {
	ID        int64
	ProductID int64
	Quantity  int
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Expired reports whether the hold's window has closed at now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// Active reports whether the hold still counts against available stock.
func (h Hold) Active(now time.Time) bool {
	return !h.Used && !h.Expired(now)
}
