package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/flashsale/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, hold_id, product_id, quantity, amount::text, status, created_at, updated_at`

// SumPaidOrders counts units sold through paid orders.
func (s *Store) SumPaidOrders(ctx context.Context, productID int64) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM orders
WHERE product_id = $1 AND status = 'paid'`

	var total int
	if err := s.queryRow(ctx, query, productID).Scan(&total); err != nil {
		return 0, wrap("sum paid orders", err)
	}
	return total, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	const stmt = `
INSERT INTO orders (hold_id, product_id, quantity, amount, status, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
RETURNING ` + orderColumns

	created, err := scanOrder(s.queryRow(ctx, stmt,
		order.HoldID,
		order.ProductID,
		order.Quantity,
		order.Amount.String(),
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrHoldInvalid
		}
		return domain.Order{}, wrap("create order", err)
	}
	return created, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) getOrder(ctx context.Context, query string, id int64) (domain.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, wrap("get order", err)
	}
	return o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, at time.Time) error {
	tag, err := s.exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return wrap("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		amount string
		status string
	)
	if err := row.Scan(&o.ID, &o.HoldID, &o.ProductID, &o.Quantity, &amount, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse order amount %q: %w", amount, err)
	}
	o.Amount = parsed
	o.Status = domain.OrderStatus(status)
	return o, nil
}
