package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cimillas/flashsale/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *Store) FindIdempotencyRecord(ctx context.Context, key, fingerprint string) (*domain.IdempotencyRecord, error) {
	const query = `
SELECT idempotency_key, fingerprint, response, created_at
FROM idempotency_records
WHERE idempotency_key = $1 AND fingerprint = $2`

	var rec domain.IdempotencyRecord
	err := s.queryRow(ctx, query, key, fingerprint).Scan(&rec.Key, &rec.Fingerprint, &rec.Response, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("find idempotency record", err)
	}
	return &rec, nil
}

func (s *Store) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM idempotency_records WHERE idempotency_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, wrap("check idempotency key", err)
	}
	return exists, nil
}

// LockIdempotencyKey takes a transaction-scoped advisory lock on key. Outside
// a transaction the lock would be released as soon as the statement ends.
func (s *Store) LockIdempotencyKey(ctx context.Context, key string) error {
	if txFromContext(ctx) == nil {
		return wrap("lock idempotency key", errors.New("no transaction in context"))
	}
	if _, err := s.exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return wrap("lock idempotency key", err)
	}
	return nil
}

// SaveIdempotencyRecord stores rec unless the pair already exists. A
// concurrent insert of the same pair blocks until the other transaction
// finishes; the record that ends up stored is returned.
func (s *Store) SaveIdempotencyRecord(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, error) {
	const stmt = `
INSERT INTO idempotency_records (idempotency_key, fingerprint, response, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key, fingerprint) DO NOTHING`

	tag, err := s.exec(ctx, stmt, rec.Key, rec.Fingerprint, rec.Response, rec.CreatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, wrap("save idempotency record", err)
	}
	if tag.RowsAffected() == 1 {
		return rec, nil
	}

	existing, err := s.FindIdempotencyRecord(ctx, rec.Key, rec.Fingerprint)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if existing == nil {
		return domain.IdempotencyRecord{}, wrap("save idempotency record", errors.New("conflicting record vanished"))
	}
	return *existing, nil
}

func (s *Store) DeleteIdempotencyRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.exec(ctx, `DELETE FROM idempotency_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, wrap("delete idempotency records", err)
	}
	return tag.RowsAffected(), nil
}
