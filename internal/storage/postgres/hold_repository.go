package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cimillas/flashsale/internal/domain"
	"github.com/jackc/pgx/v5"
)

const holdColumns = `id, product_id, quantity, token, expires_at, used, created_at`

func (s *Store) SumActiveHolds(ctx context.Context, productID int64, now time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM holds
WHERE product_id = $1 AND used = FALSE AND expires_at > $2`

	var total int
	if err := s.queryRow(ctx, query, productID, now).Scan(&total); err != nil {
		return 0, wrap("sum active holds", err)
	}
	return total, nil
}

// CreateHold inserts hold and returns it with its generated id. A token that
// is already taken yields domain.ErrHoldTokenCollision without aborting the
// surrounding transaction.
func (s *Store) CreateHold(ctx context.Context, hold domain.Hold) (domain.Hold, error) {
	const stmt = `
INSERT INTO holds (product_id, quantity, token, expires_at, used, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (token) DO NOTHING
RETURNING ` + holdColumns

	created, err := scanHold(s.queryRow(ctx, stmt,
		hold.ProductID,
		hold.Quantity,
		hold.Token,
		hold.ExpiresAt,
		hold.Used,
		hold.CreatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Hold{}, domain.ErrHoldTokenCollision
		}
		return domain.Hold{}, wrap("create hold", err)
	}
	return created, nil
}

func (s *Store) GetHoldByTokenForUpdate(ctx context.Context, token string) (domain.Hold, error) {
	return s.getHold(ctx, `SELECT `+holdColumns+` FROM holds WHERE token = $1 FOR UPDATE`, token)
}

func (s *Store) GetHoldForUpdate(ctx context.Context, id int64) (domain.Hold, error) {
	return s.getHold(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) getHold(ctx context.Context, query string, arg any) (domain.Hold, error) {
	h, err := scanHold(s.queryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, wrap("get hold", err)
	}
	return h, nil
}

func (s *Store) MarkHoldUsed(ctx context.Context, holdID int64) error {
	tag, err := s.exec(ctx, `UPDATE holds SET used = TRUE WHERE id = $1`, holdID)
	if err != nil {
		return wrap("mark hold used", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	const query = `
SELECT ` + holdColumns + `
FROM holds
WHERE used = FALSE AND expires_at <= $1
ORDER BY expires_at, id
LIMIT $2`

	rows, err := s.query(ctx, query, now, limit)
	if err != nil {
		return nil, wrap("list expired holds", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, wrap("scan hold", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list expired holds", err)
	}
	return holds, nil
}

func scanHold(row pgx.Row) (domain.Hold, error) {
	var h domain.Hold
	err := row.Scan(&h.ID, &h.ProductID, &h.Quantity, &h.Token, &h.ExpiresAt, &h.Used, &h.CreatedAt)
	return h, err
}
