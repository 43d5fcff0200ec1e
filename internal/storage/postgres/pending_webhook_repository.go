package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cimillas/flashsale/internal/domain"
	"github.com/jackc/pgx/v5"
)

const pendingWebhookColumns = `id, order_id, payment_id, status, payload, processed, created_at, processed_at`

func (s *Store) CreatePendingWebhook(ctx context.Context, p domain.PendingWebhook) (domain.PendingWebhook, error) {
	const stmt = `
INSERT INTO pending_webhooks (order_id, payment_id, status, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + pendingWebhookColumns

	created, err := scanPendingWebhook(s.queryRow(ctx, stmt, p.OrderID, p.PaymentID, string(p.Status), p.Payload, p.CreatedAt))
	if err != nil {
		return domain.PendingWebhook{}, wrap("create pending webhook", err)
	}
	return created, nil
}

func (s *Store) ListPendingWebhooks(ctx context.Context, since time.Time, limit int) ([]domain.PendingWebhook, error) {
	const query = `
SELECT ` + pendingWebhookColumns + `
FROM pending_webhooks
WHERE processed = FALSE AND created_at >= $1
ORDER BY created_at, id
LIMIT $2`

	rows, err := s.query(ctx, query, since, limit)
	if err != nil {
		return nil, wrap("list pending webhooks", err)
	}
	defer rows.Close()

	var out []domain.PendingWebhook
	for rows.Next() {
		p, err := scanPendingWebhook(rows)
		if err != nil {
			return nil, wrap("scan pending webhook", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list pending webhooks", err)
	}
	return out, nil
}

func (s *Store) GetPendingWebhookForUpdate(ctx context.Context, id int64) (domain.PendingWebhook, error) {
	p, err := scanPendingWebhook(s.queryRow(ctx, `SELECT `+pendingWebhookColumns+` FROM pending_webhooks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingWebhook{}, domain.ErrPendingWebhookNotFound
		}
		return domain.PendingWebhook{}, wrap("get pending webhook", err)
	}
	return p, nil
}

func (s *Store) MarkPendingWebhookProcessed(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.exec(ctx, `UPDATE pending_webhooks SET processed = TRUE, processed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return wrap("mark pending webhook processed", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPendingWebhookNotFound
	}
	return nil
}

func (s *Store) DeletePendingWebhooksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.exec(ctx, `DELETE FROM pending_webhooks WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, wrap("delete pending webhooks", err)
	}
	return tag.RowsAffected(), nil
}

func scanPendingWebhook(row pgx.Row) (domain.PendingWebhook, error) {
	var (
		p      domain.PendingWebhook
		status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentID, &status, &p.Payload, &p.Processed, &p.CreatedAt, &p.ProcessedAt)
	p.Status = domain.PaymentStatus(status)
	return p, err
}
