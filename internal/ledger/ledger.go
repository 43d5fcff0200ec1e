// Package ledger computes sellable stock for a product from persisted facts.
//
// Available is the authoritative formula and is evaluated inside the product
// lock by the reservation path. Ledger wraps the same formula with a short
// lived cache for read-only callers; its figure is advisory and never used to
// admit or reject a reservation.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Second

// Facts are the persisted quantities availability is derived from.
type Facts struct {
	TotalStock int
	ActiveHeld int
	Paid       int
}

// Available returns max(0, total - active holds - paid orders).
func Available(f Facts) int {
	available := f.TotalStock - f.ActiveHeld - f.Paid
	if available < 0 {
		return 0
	}
	return available
}

// Counter sums the quantities withheld from a product's stock.
type Counter interface {
	SumActiveHolds(ctx context.Context, productID int64, now time.Time) (int, error)
	SumPaidOrders(ctx context.Context, productID int64) (int, error)
}

// Source is a Counter that can also read the product itself.
type Source interface {
	Counter
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// Cache stores advisory availability figures by key.
type Cache interface {
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, value int, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Gather reads the facts for product at now. When ctx carries a transaction
// the sums observe that transaction's snapshot.
func Gather(ctx context.Context, counter Counter, product domain.Product, now time.Time) (Facts, error) {
	active, err := counter.SumActiveHolds(ctx, product.ID, now)
	if err != nil {
		return Facts{}, err
	}
	paid, err := counter.SumPaidOrders(ctx, product.ID)
	if err != nil {
		return Facts{}, err
	}
	return Facts{TotalStock: product.TotalStock, ActiveHeld: active, Paid: paid}, nil
}

// Key is the cache key for a product's availability.
func Key(productID int64) string {
	return fmt.Sprintf("flashsale:stock:%d", productID)
}

type Ledger struct {
	source Source
	cache  Cache
	clock  clock.Clock
	ttl    time.Duration
	logger *zap.Logger
}

type Option func(*Ledger)

// WithCacheTTL overrides how long an availability figure is served from cache.
func WithCacheTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.ttl = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New builds a Ledger. A nil cache disables caching.
func New(source Source, cache Cache, clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		source: source,
		cache:  cache,
		clock:  clk,
		ttl:    defaultCacheTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Available returns the advisory availability for productID. Cache failures
// degrade to a direct computation.
func (l *Ledger) Available(ctx context.Context, productID int64) (int, error) {
	if productID <= 0 {
		return 0, domain.ErrInvalidID
	}
	key := Key(productID)
	if l.cache != nil {
		value, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			l.logger.Warn("stock cache read failed", zap.Int64("product_id", productID), zap.Error(err))
		} else if ok {
			return value, nil
		}
	}

	product, err := l.source.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	facts, err := Gather(ctx, l.source, product, l.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("gather stock facts: %w", err)
	}
	available := Available(facts)

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, available, l.ttl); err != nil {
			l.logger.Warn("stock cache write failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return available, nil
}

// Invalidate drops the cached figure for productID. Callers run it after the
// mutating transaction has committed.
func (l *Ledger) Invalidate(ctx context.Context, productID int64) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, Key(productID)); err != nil {
		l.logger.Warn("stock cache invalidation failed", zap.Int64("product_id", productID), zap.Error(err))
	}
}
