package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog fact a sale is run against. TotalStock never
// changes while holds and orders reference it.
type Product struct {
	ID         int64
	Name       string
	UnitPrice  decimal.Decimal
	TotalStock int
	CreatedAt  time.Time
}
