// Package idempotency remembers the response produced for a caller-supplied
// key and request fingerprint so retries replay it instead of re-executing.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
)

// Store persists idempotency records. Implementations honour a transaction
// carried in ctx.
type Store interface {
	FindIdempotencyRecord(ctx context.Context, key, fingerprint string) (*domain.IdempotencyRecord, error)
	IdempotencyKeyExists(ctx context.Context, key string) (bool, error)
	// LockIdempotencyKey blocks until no other transaction holds key and
	// keeps it held until the transaction in ctx ends.
	LockIdempotencyKey(ctx context.Context, key string) error
	// SaveIdempotencyRecord inserts rec unless (key, fingerprint) already
	// exists, and returns whichever record is stored afterwards.
	SaveIdempotencyRecord(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, error)
}

// Fingerprint is the hex SHA-256 of the raw request bytes.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type Cache struct {
	store Store
	clock clock.Clock
}

func NewCache(store Store, clk clock.Clock) *Cache {
	return &Cache{store: store, clock: clk}
}

// Lookup returns the stored response for (key, fingerprint). It reports
// domain.ErrIdempotencyConflict when key was used with another fingerprint.
func (c *Cache) Lookup(ctx context.Context, key, fingerprint string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, domain.ErrIdempotencyKeyRequired
	}
	rec, err := c.store.FindIdempotencyRecord(ctx, key, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency record: %w", err)
	}
	if rec != nil {
		return rec.Response, true, nil
	}
	exists, err := c.store.IdempotencyKeyExists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("check idempotency key: %w", err)
	}
	if exists {
		return nil, false, domain.ErrIdempotencyConflict
	}
	return nil, false, nil
}

// Claim serializes callers of key for the rest of the transaction in ctx and
// then reports what Lookup would. A caller that reaches Remember after Claim
// returned a miss is the only writer for key until it commits.
func (c *Cache) Claim(ctx context.Context, key, fingerprint string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, domain.ErrIdempotencyKeyRequired
	}
	if err := c.store.LockIdempotencyKey(ctx, key); err != nil {
		return nil, false, fmt.Errorf("lock idempotency key: %w", err)
	}
	return c.Lookup(ctx, key, fingerprint)
}

// Remember stores response under (key, fingerprint) and returns the bytes
// that are now authoritative. When a concurrent caller stored first, its
// response is returned instead of ours.
func (c *Cache) Remember(ctx context.Context, key, fingerprint string, response []byte) ([]byte, error) {
	if key == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}
	stored, err := c.store.SaveIdempotencyRecord(ctx, domain.IdempotencyRecord{
		Key:         key,
		Fingerprint: fingerprint,
		Response:    response,
		CreatedAt:   c.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("save idempotency record: %w", err)
	}
	return stored.Response, nil
}
