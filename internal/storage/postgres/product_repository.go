package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/flashsale/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, unit_price::text, total_stock, created_at`

func (s *Store) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (s *Store) GetProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) getProduct(ctx context.Context, query string, id int64) (domain.Product, error) {
	p, err := scanProduct(s.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, wrap("get product", err)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	const stmt = `
INSERT INTO products (name, unit_price, total_stock, created_at)
VALUES ($1, $2::numeric, $3, $4)
RETURNING ` + productColumns

	created, err := scanProduct(s.queryRow(ctx, stmt, p.Name, p.UnitPrice.String(), p.TotalStock, p.CreatedAt))
	if err != nil {
		return domain.Product{}, wrap("create product", err)
	}
	return created, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.TotalStock, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	unitPrice, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse unit price %q: %w", price, err)
	}
	p.UnitPrice = unitPrice
	return p, nil
}
